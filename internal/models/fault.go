package models

// Severity ranks how urgent a fault is.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// FaultCategory is the closed set of anomaly kinds the detector can emit.
type FaultCategory string

const (
	FaultBusTimingGap        FaultCategory = "BUS_TIMING_GAP"
	FaultErrorFrame          FaultCategory = "ERROR_FRAME"
	FaultJ1939DTC            FaultCategory = "J1939_DTC"
	FaultUDSNegativeResponse FaultCategory = "UDS_NEGATIVE_RESPONSE"
	FaultUDSDTC              FaultCategory = "UDS_DTC"
	FaultDLCMismatch         FaultCategory = "DLC_MISMATCH"
	FaultPeriodicTimeout     FaultCategory = "PERIODIC_TIMEOUT"
	FaultTextPattern         FaultCategory = "TEXT_PATTERN"
)

// FaultRecord is one detected anomaly. Records handed to callers are always
// sorted ascending by Timestamp.
type FaultRecord struct {
	Timestamp   float64
	Category    FaultCategory
	Severity    Severity
	Code        string
	Description string
	Source      string
	FrameID     uint32
	HasFrameID  bool
	Data        []byte
	Remedy      string
}

// FaultSummary aggregates a fault list for reporting.
type FaultSummary struct {
	Total       int
	BySeverity  map[Severity]int
	ByCategory  map[FaultCategory]int
	BySource    map[string]int
	UniqueCodes []string
	TimeRange   TimeRange
}
