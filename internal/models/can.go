package models

import (
	"fmt"
	"strings"
)

// Frame represents a single CAN 2.0 frame recovered from a log file or a
// live interface. Timestamps are seconds as recorded by the source.
type Frame struct {
	Timestamp float64
	Channel   string
	ID        uint32
	Extended  bool
	Error     bool
	Remote    bool
	DLC       uint8
	Data      []byte
}

// PGN extracts the J1939 Parameter Group Number from an extended identifier.
// Returns 0 for standard identifiers, which never carry a PGN.
func (f Frame) PGN() uint32 {
	if !f.Extended && f.ID <= 0x7FF {
		return 0
	}
	return (f.ID >> 8) & 0xFFFF
}

// IDHex returns the identifier formatted the way the text dialects print it:
// 3 hex digits for standard frames, 8 for extended.
func (f Frame) IDHex() string {
	if f.Extended {
		return fmt.Sprintf("%08X", f.ID)
	}
	return fmt.Sprintf("%03X", f.ID)
}

// DataHex returns the payload as an unseparated upper-case hex string.
func (f Frame) DataHex() string {
	var b strings.Builder
	for _, d := range f.Data {
		fmt.Fprintf(&b, "%02X", d)
	}
	return b.String()
}

// String renders the frame in SocketCAN log notation.
func (f Frame) String() string {
	return fmt.Sprintf("(%.6f) %s %s#%s", f.Timestamp, f.Channel, f.IDHex(), f.DataHex())
}

// FilterCriteria selects a subset of frames. Zero-valued fields match
// everything.
type FilterCriteria struct {
	IDs      []uint32
	Start    float64
	End      float64
	Channels []string
}

// FilterFrames returns the frames matching all set criteria, preserving
// input order.
func FilterFrames(frames []Frame, c FilterCriteria) []Frame {
	idSet := make(map[uint32]struct{}, len(c.IDs))
	for _, id := range c.IDs {
		idSet[id] = struct{}{}
	}
	chanSet := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		chanSet[ch] = struct{}{}
	}

	out := make([]Frame, 0, len(frames))
	for _, f := range frames {
		if len(idSet) > 0 {
			if _, ok := idSet[f.ID]; !ok {
				continue
			}
		}
		if len(chanSet) > 0 {
			if _, ok := chanSet[f.Channel]; !ok {
				continue
			}
		}
		if c.End > 0 && (f.Timestamp < c.Start || f.Timestamp > c.End) {
			continue
		}
		out = append(out, f)
	}
	return out
}
