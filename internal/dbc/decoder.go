package dbc

import (
	"can-log-analyzer/internal/models"
)

// DecodedSignal is the result of extracting one signal from a frame payload.
type DecodedSignal struct {
	Raw   int64
	Value float64
	Unit  string

	// Label is the enumeration text when the raw value has a VAL_ entry.
	Label string

	// Insufficient is set when the payload was too short for the signal's
	// declared bit span; the value is zero in that case, never an error.
	Insufficient bool
}

// DecodeFrame extracts every signal of the message layout from the frame
// payload. Decoding is deterministic: the same frame and layout always
// produce identical results.
func DecodeFrame(f models.Frame, msg *Message) map[string]DecodedSignal {
	decoded := make(map[string]DecodedSignal, len(msg.Signals))
	for _, name := range msg.SignalOrder {
		decoded[name] = DecodeSignal(msg.Signals[name], f.Data)
	}
	return decoded
}

// DecodeSignal extracts one signal from a payload: a bit-by-bit walk in the
// direction dictated by byte order, two's-complement sign extension, linear
// scaling, min/max clamping, and enumeration lookup.
func DecodeSignal(sig *Signal, data []byte) DecodedSignal {
	out := DecodedSignal{Unit: sig.Unit}

	if len(data)*8 < sig.StartBit+sig.Size {
		out.Insufficient = true
		return out
	}

	var raw int64
	if sig.LittleEndian {
		// Intel: increasing bit index within increasing byte index.
		for i := 0; i < sig.Size; i++ {
			byteIndex := (sig.StartBit + i) / 8
			bitIndex := (sig.StartBit + i) % 8
			if byteIndex < len(data) {
				bit := int64(data[byteIndex]>>bitIndex) & 1
				raw |= bit << i
			}
		}
	} else {
		// Motorola: walk decreasing bit positions from the start bit.
		for i := 0; i < sig.Size; i++ {
			pos := sig.StartBit - i
			byteIndex := pos / 8
			bitIndex := 7 - (pos % 8)
			if byteIndex >= 0 && byteIndex < len(data) {
				bit := int64(data[byteIndex]>>bitIndex) & 1
				raw |= bit << (sig.Size - 1 - i)
			}
		}
	}

	if sig.Signed && raw&(1<<(sig.Size-1)) != 0 {
		raw -= 1 << sig.Size
	}

	value := float64(raw)*sig.Factor + sig.Offset
	if sig.Min != 0 || sig.Max != 0 {
		value = min(max(value, sig.Min), sig.Max)
	}

	out.Raw = raw
	out.Value = value
	if label, ok := sig.Values[raw]; ok {
		out.Label = label
	}
	return out
}
