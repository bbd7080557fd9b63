// Package frame decodes inbound feature frame envelopes
package frame

import (
	"encoding/json"
	"fmt"

	"github.com/c360/featurebridge/errors"
)

// Kind is the envelope type discriminator accepted by the bridge
const Kind = "features"

// Envelope is the inbound wire format:
//
//	{"type": "features", "payload": {"rms": 0.5, "beat": true, ...}}
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Frame is one decoded snapshot of analysed signal features.
// A Frame is never modified after Decode returns it.
type Frame struct {
	fields map[string]any
}

// New wraps an already decoded payload object. Intended for tests and
// in-process producers.
func New(fields map[string]any) Frame {
	return Frame{fields: fields}
}

// Decode parses a raw inbound payload into a Frame.
// Every failure is classified as invalid; callers drop the payload.
func Decode(raw []byte) (Frame, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"frame", "Decode", "unmarshal envelope")
	}
	// "null" unmarshals into a nil map without error
	if env == nil {
		return Frame{}, errors.WrapInvalid(errors.ErrInvalidData, "frame", "Decode", "validate envelope")
	}

	var kind string
	if rawKind, ok := env["type"]; !ok || json.Unmarshal(rawKind, &kind) != nil {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: missing type", errors.ErrUnknownFrameKind),
			"frame", "Decode", "validate discriminator")
	}
	if kind != Kind {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownFrameKind, kind),
			"frame", "Decode", "validate discriminator")
	}

	var fields map[string]any
	rawPayload, ok := env["payload"]
	if !ok {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: missing payload", errors.ErrInvalidData),
			"frame", "Decode", "validate payload")
	}
	if err := json.Unmarshal(rawPayload, &fields); err != nil || fields == nil {
		return Frame{}, errors.WrapInvalid(
			fmt.Errorf("%w: payload is not an object", errors.ErrInvalidData),
			"frame", "Decode", "validate payload")
	}

	return Frame{fields: fields}, nil
}

// Lookup walks nested objects along path and returns the value found.
// A missing key or a non-object intermediate yields ok=false.
func (f Frame) Lookup(path ...string) (any, bool) {
	if len(path) == 0 || f.fields == nil {
		return nil, false
	}

	current := f.fields
	for i, key := range path {
		v, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Group returns the sub-object at key, if present and an object.
func (f Frame) Group(key string) (map[string]any, bool) {
	v, ok := f.Lookup(key)
	if !ok {
		return nil, false
	}
	g, ok := v.(map[string]any)
	return g, ok
}

// Len returns the number of top-level fields.
func (f Frame) Len() int {
	return len(f.fields)
}
