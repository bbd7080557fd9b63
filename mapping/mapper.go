// Package mapping flattens a feature frame into addressed OSC messages using
// a fixed schema.
package mapping

import (
	"github.com/c360/featurebridge/frame"
	"github.com/c360/featurebridge/message"
)

// Array caps
const (
	MFCCCap   = 13
	ChromaCap = 12
)

// Features is the bridge schema, in emission order.
var Features = MustSchema([]Rule{
	num("/audio/rms", "rms"),
	num("/audio/energy", "energy"),
	num("/audio/zcr", "zcr"),
	num("/audio/loudness", "loudness"),
	num("/audio/spectral/centroid", "spectralCentroid"),
	num("/audio/spectral/flatness", "spectralFlatness"),
	num("/audio/spectral/rolloff", "spectralRolloff"),
	num("/audio/spectral/spread", "spectralSpread"),
	num("/audio/spectral/skewness", "spectralSkewness"),
	num("/audio/spectral/kurtosis", "spectralKurtosis"),
	num("/audio/spectral/flux", "spectralFlux"),
	num("/audio/perceptual/sharpness", "perceptualSharpness"),
	num("/audio/perceptual/spread", "perceptualSpread"),
	flag("/audio/beat", "beat"),
	flag("/audio/onset", "onset"),

	optional("/audio/bpm", "bpm"),
	optional("/audio/confidence", "bpmConfidence"),
	optional("/audio/pitch", "pitch"),
	text("/audio/note", "note"),

	member("/audio/bands/sub", "bands", "sub"),
	member("/audio/bands/low", "bands", "low"),
	member("/audio/bands/mid", "bands", "mid"),
	member("/audio/bands/high", "bands", "high"),
	member("/audio/envelope/bass", "envelope", "bass"),
	member("/audio/envelope/mid", "envelope", "mid"),
	member("/audio/envelope/treble", "envelope", "treble"),

	array("/audio/mfcc", "mfcc", MFCCCap),
	array("/audio/chroma", "chroma", ChromaCap),
})

// Map applies the Features schema to f.
func Map(f frame.Frame) []message.Message {
	return Features.Map(f)
}

// Map returns one message per rule whose path is present in f (or whose
// default applies), in declaration order. The result never exceeds
// MaxOutputs regardless of input array lengths.
func (s *Schema) Map(f frame.Frame) []message.Message {
	return s.MapInto(make([]message.Message, 0, s.maxOutputs), f)
}

// MapInto appends the mapped messages to dst and returns it.
func (s *Schema) MapInto(dst []message.Message, f frame.Frame) []message.Message {
	for i, r := range s.rules {
		v, ok := f.Lookup(r.Path...)
		// explicit null counts as absent
		if ok && v == nil {
			ok = false
		}

		if r.IsArray() {
			items, isSlice := v.([]any)
			if !ok || !isSlice {
				continue
			}
			n := len(items)
			if n > r.Cap {
				n = r.Cap
			}
			for j := 0; j < n; j++ {
				dst = append(dst, message.Message{Address: s.indexed[i][j], Value: r.coerce(items[j])})
			}
			continue
		}

		if !ok {
			if r.Default != nil {
				dst = append(dst, message.Message{Address: r.Address, Value: *r.Default})
			}
			continue
		}
		dst = append(dst, message.Message{Address: r.Address, Value: r.coerce(v)})
	}
	return dst
}
