package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id       string
	closed   atomic.Int32
	closeErr error
	registry *Registry
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Close() error {
	f.closed.Add(1)
	if f.registry != nil {
		f.registry.Unregister(f)
	}
	return f.closeErr
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()
	a := &fakeSession{id: "a"}
	b := &fakeSession{id: "b"}

	r.Register(a)
	r.Register(b)
	assert.Equal(t, 2, r.Live())
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	r.Unregister(a)
	assert.Equal(t, 1, r.Live())

	// Idempotent remove
	r.Unregister(a)
	r.Unregister(&fakeSession{id: "never-registered"})
	assert.Equal(t, 1, r.Live())
	assert.Equal(t, []string{"b"}, r.IDs())
}

func TestRegistry_UnregisterStaleSession(t *testing.T) {
	r := NewRegistry()
	old := &fakeSession{id: "same"}
	current := &fakeSession{id: "same"}

	r.Register(old)
	r.Register(current)
	r.Unregister(old)

	assert.Equal(t, 1, r.Live(), "stale session must not remove its replacement")
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry()
	sessions := []*fakeSession{
		{id: "a", registry: r},
		{id: "b", registry: r, closeErr: fmt.Errorf("already closed")},
		{id: "c", registry: r},
	}
	for _, s := range sessions {
		r.Register(s)
	}

	errs := r.CloseAll()
	require.Len(t, errs, 1)
	assert.EqualError(t, errs[0], "already closed")
	assert.Equal(t, 0, r.Live())

	for _, s := range sessions {
		assert.Equal(t, int32(1), s.closed.Load(), s.id)
	}

	// Second sweep is a no-op
	assert.Empty(t, r.CloseAll())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &fakeSession{id: fmt.Sprintf("s-%d", i)}
			r.Register(s)
			_ = r.Live()
			if i%2 == 0 {
				r.Unregister(s)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, r.Live())
}
