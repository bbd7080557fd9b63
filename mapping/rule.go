package mapping

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/featurebridge/errors"
	"github.com/c360/featurebridge/message"
)

// Coercion selects how a rule turns a decoded value into a wire value
type Coercion int

const (
	// Number applies message.Coerce: finite numbers become floats
	Number Coercion = iota
	// Flag encodes booleans (and non-zero numbers) as integer 0/1
	Flag
	// Text applies message.Coerce, expecting a string
	Text
)

// Rule maps one frame path to one outbound address.
// A rule with Cap > 0 expands an array field into Address/<index> for
// every index below min(len, Cap).
type Rule struct {
	Address  string
	Path     []string
	Coercion Coercion
	// Default is emitted when the path is absent. Nil means skip.
	Default *message.Value
	Cap     int
}

// IsArray reports whether the rule expands an array field
func (r Rule) IsArray() bool {
	return r.Cap > 0
}

func (r Rule) coerce(v any) message.Value {
	if r.Coercion == Flag {
		switch x := v.(type) {
		case bool:
			return message.Flag(x)
		case float64:
			return message.Flag(x != 0)
		}
	}
	return message.Coerce(v)
}

func num(address, field string) Rule {
	zero := message.Float(0)
	return Rule{Address: address, Path: []string{field}, Coercion: Number, Default: &zero}
}

func flag(address, field string) Rule {
	off := message.Flag(false)
	return Rule{Address: address, Path: []string{field}, Coercion: Flag, Default: &off}
}

func optional(address, field string) Rule {
	return Rule{Address: address, Path: []string{field}, Coercion: Number}
}

func text(address, field string) Rule {
	return Rule{Address: address, Path: []string{field}, Coercion: Text}
}

// member rules live inside an optional group; a missing group skips them all
func member(address, group, field string) Rule {
	return Rule{Address: address, Path: []string{group, field}, Coercion: Number}
}

func array(address, field string, limit int) Rule {
	return Rule{Address: address, Path: []string{field}, Coercion: Number, Cap: limit}
}

// Schema is a compiled, immutable rule set
type Schema struct {
	rules      []Rule
	indexed    [][]string
	maxOutputs int
}

// NewSchema validates rules and precomputes array addresses.
// Addresses must be unique, absolute and free of whitespace.
func NewSchema(rules []Rule) (*Schema, error) {
	s := &Schema{
		rules:   make([]Rule, len(rules)),
		indexed: make([][]string, len(rules)),
	}
	copy(s.rules, rules)

	seen := make(map[string]bool)
	claim := func(addr string) error {
		if seen[addr] {
			return errors.WrapInvalid(fmt.Errorf("duplicate address %s", addr),
				"mapping", "NewSchema", "validate address")
		}
		seen[addr] = true
		return nil
	}

	for i, r := range s.rules {
		if !strings.HasPrefix(r.Address, "/") || strings.ContainsAny(r.Address, " \t#*,?[]{}") {
			return nil, errors.WrapInvalid(fmt.Errorf("invalid address %q", r.Address),
				"mapping", "NewSchema", "validate address")
		}
		if len(r.Path) == 0 {
			return nil, errors.WrapInvalid(fmt.Errorf("empty path for %s", r.Address),
				"mapping", "NewSchema", "validate path")
		}
		if r.Cap < 0 || (r.IsArray() && r.Default != nil) {
			return nil, errors.WrapInvalid(fmt.Errorf("invalid array rule %s", r.Address),
				"mapping", "NewSchema", "validate cap")
		}

		if !r.IsArray() {
			if err := claim(r.Address); err != nil {
				return nil, err
			}
			s.maxOutputs++
			continue
		}

		addrs := make([]string, r.Cap)
		for j := range addrs {
			addrs[j] = r.Address + "/" + strconv.Itoa(j)
			if err := claim(addrs[j]); err != nil {
				return nil, err
			}
		}
		s.indexed[i] = addrs
		s.maxOutputs += r.Cap
	}

	return s, nil
}

// MustSchema is NewSchema for package-level declarations
func MustSchema(rules []Rule) *Schema {
	s, err := NewSchema(rules)
	if err != nil {
		panic(err)
	}
	return s
}

// Rules returns a copy of the rules in declaration order
func (s *Schema) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Addresses returns every address the schema can emit, in emission order
func (s *Schema) Addresses() []string {
	out := make([]string, 0, s.maxOutputs)
	for i, r := range s.rules {
		if r.IsArray() {
			out = append(out, s.indexed[i]...)
			continue
		}
		out = append(out, r.Address)
	}
	return out
}

// MaxOutputs is the upper bound on messages produced for a single frame
func (s *Schema) MaxOutputs() int {
	return s.maxOutputs
}
