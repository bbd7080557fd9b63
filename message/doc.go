// Package message defines the outbound unit of the bridge: an OSC address
// paired with a value that has already been coerced to one of three wire
// types.
//
// # Wire Types
//
//   - KindFloat: finite numbers, encoded as OSC float32
//   - KindInt: booleans as 0/1, encoded as OSC int32
//   - KindString: everything else, encoded as OSC string
//
// Coerce is the single place that decides how an arbitrary decoded JSON
// value maps onto these kinds. NaN and infinities are not valid floats on the
// wire and are sent as their string form; nil becomes the empty string.
//
//	message.Coerce(0.5)        // float 0.5
//	message.Coerce(true)       // int 1
//	message.Coerce(nil)        // string ""
//	message.Coerce(math.NaN()) // string "NaN"
package message
