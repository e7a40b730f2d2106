package models

// TimeRange is the observed timestamp span of a log file.
type TimeRange struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (r TimeRange) Duration() float64 {
	return r.End - r.Start
}

// IDCount pairs an identifier with its message count, for frequency ranking.
type IDCount struct {
	ID    uint32
	Count uint64
}

// FileStats summarizes one fully streamed log file.
type FileStats struct {
	TotalMessages   uint64
	UniqueIDs       int
	Channels        []string
	TimeRange       TimeRange
	MessageRate     float64
	ErrorFrames     uint64
	ExtendedIDs     uint64
	StandardIDs     uint64
	IDFrequency     map[uint32]uint64
	DLCDistribution map[uint8]uint64
	TopIDs          []IDCount
	SkippedLines    uint64
	FileSize        int64

	// Note is set by stub dialects whose full decode is not implemented.
	Note string
}
