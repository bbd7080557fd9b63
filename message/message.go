package message

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the wire type of an outbound value
type Kind int

const (
	// KindFloat is a 32-bit float argument (OSC type tag 'f')
	KindFloat Kind = iota
	// KindInt is a 32-bit integer argument (OSC type tag 'i'), used for flags
	KindInt
	// KindString is a string argument (OSC type tag 's')
	KindString
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a scalar already coerced to exactly one wire type.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Float float32
	Int   int32
	Str   string
}

// Float returns a float value
func Float(f float64) Value {
	return Value{Kind: KindFloat, Float: float32(f)}
}

// Int returns an integer value
func Int(i int32) Value {
	return Value{Kind: KindInt, Int: i}
}

// Flag returns the integer 0/1 encoding of a boolean
func Flag(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// String returns a string value
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Arg returns the value as the Go type the OSC encoder expects for its kind.
func (v Value) Arg() any {
	switch v.Kind {
	case KindFloat:
		return v.Float
	case KindInt:
		return v.Int
	default:
		return v.Str
	}
}

// String formats the value for logs.
func (v Value) String() string {
	switch v.Kind {
	case KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', -1, 32)
	case KindInt:
		return strconv.FormatInt(int64(v.Int), 10)
	default:
		return strconv.Quote(v.Str)
	}
}

// Coerce converts an arbitrary decoded value to a wire value:
// finite numbers become floats, booleans become 0/1 integers, nil becomes
// the empty string and everything else (NaN and ±Inf included) is
// stringified.
func Coerce(v any) Value {
	switch x := v.(type) {
	case nil:
		return String("")
	case Value:
		return x
	case bool:
		return Flag(x)
	case string:
		return String(x)
	case float64:
		return coerceFloat(x)
	case float32:
		return coerceFloat(float64(x))
	case int:
		return coerceFloat(float64(x))
	case int32:
		return coerceFloat(float64(x))
	case int64:
		return coerceFloat(float64(x))
	case uint32:
		return coerceFloat(float64(x))
	case uint64:
		return coerceFloat(float64(x))
	case interface{ Float64() (float64, error) }:
		// json.Number
		f, err := x.Float64()
		if err != nil {
			return String(fmt.Sprint(v))
		}
		return coerceFloat(f)
	default:
		return String(fmt.Sprint(v))
	}
}

// coerceFloat checks finiteness at wire precision: a float64 beyond the
// float32 range would go out as Inf, so it is sent as text instead.
func coerceFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(float64(float32(f)), 0) {
		return String(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Float(f)
}

// Message is one addressed outbound value
type Message struct {
	Address string
	Value   Value
}

// New creates a message from an address and an arbitrary value using Coerce.
func New(address string, v any) Message {
	return Message{Address: address, Value: Coerce(v)}
}

// String formats the message for logs.
func (m Message) String() string {
	return m.Address + " " + m.Value.String()
}
