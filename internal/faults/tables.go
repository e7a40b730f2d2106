package faults

import (
	"regexp"

	"can-log-analyzer/internal/models"
)

// J1939 DM1 (active DTCs) and DM2 (previously active) parameter groups.
const (
	pgnDM1 = 0xFECA
	pgnDM2 = 0xFECB
)

// UDS negative response marker and read-DTC positive response service.
const (
	udsNegativeResponse = 0x7F
	udsReadDTCResponse  = 0x59
)

// nrcDescriptions maps UDS negative response codes to their ISO 14229 names.
var nrcDescriptions = map[byte]string{
	0x10: "General Reject",
	0x11: "Service Not Supported",
	0x12: "Sub Function Not Supported",
	0x13: "Incorrect Message Length Or Invalid Format",
	0x14: "Response Too Long",
	0x21: "Busy Repeat Request",
	0x22: "Conditions Not Correct",
	0x24: "Request Sequence Error",
	0x25: "No Response From Subnet Component",
	0x26: "Failure Prevents Execution Of Requested Action",
	0x31: "Request Out Of Range",
	0x33: "Security Access Denied",
	0x35: "Invalid Key",
	0x36: "Exceeded Number Of Attempts",
	0x37: "Required Time Delay Not Expired",
	0x70: "Upload Download Not Accepted",
	0x71: "Transfer Data Suspended",
	0x72: "General Programming Failure",
	0x73: "Wrong Block Sequence Counter",
	0x78: "Request Correctly Received Response Pending",
	0x7E: "Sub Function Not Supported In Active Session",
	0x7F: "Service Not Supported In Active Session",
}

// spnNames labels well-known J1939 suspect parameter numbers.
var spnNames = map[uint32]string{
	91:   "Accelerator Pedal Position",
	94:   "Fuel Delivery Pressure",
	100:  "Engine Oil Pressure",
	102:  "Intake Manifold Pressure",
	105:  "Intake Manifold Temperature",
	110:  "Engine Coolant Temperature",
	190:  "Engine Speed",
	520:  "SPN Suspect Parameter Number",
	629:  "Controller #1",
	639:  "J1939 Network #1",
	1569: "Engine Protection Torque Derate",
}

// dtcClassLetters maps the 2-bit UDS DTC class field to its prefix letter.
var dtcClassLetters = [4]byte{'P', 'C', 'B', 'U'}

// textPatterns drive the raw-text fallback. Order matters: at most one fault
// is emitted per line and the first match wins.
type textPattern struct {
	kind     string
	severity models.Severity
	re       *regexp.Regexp
}

var textPatterns = []textPattern{
	{"BUS_OFF", models.SeverityCritical, regexp.MustCompile(`(?i)bus[-_ ]?off|busoff`)},
	{"ERROR_FRAME", models.SeverityCritical, regexp.MustCompile(`(?i)error[-_ ]?frame|err[-_ ]?frame`)},
	{"TIMEOUT", models.SeverityHigh, regexp.MustCompile(`(?i)timeout|timed?[-_ ]?out`)},
	{"CHECKSUM", models.SeverityHigh, regexp.MustCompile(`(?i)checksum|crc[-_ ]?error|crc[-_ ]?fail`)},
	{"DLC_ERROR", models.SeverityMedium, regexp.MustCompile(`(?i)dlc[-_ ]?error|wrong[-_ ]?dlc|invalid[-_ ]?dlc`)},
	{"STUFF_ERROR", models.SeverityLow, regexp.MustCompile(`(?i)stuff[-_ ]?error|bit[-_ ]?stuff`)},
	{"FORM_ERROR", models.SeverityLow, regexp.MustCompile(`(?i)form[-_ ]?error|format[-_ ]?error`)},
	{"ACK_ERROR", models.SeverityMedium, regexp.MustCompile(`(?i)ack[-_ ]?error|no[-_ ]?ack|acknowledge[-_ ]?error`)},
	{"BIT_ERROR", models.SeverityLow, regexp.MustCompile(`(?i)bit[-_ ]?error|bit[-_ ]?fail`)},
	{"ARBITRATION_LOST", models.SeverityLow, regexp.MustCompile(`(?i)arbitration[-_ ]?lost|arb[-_ ]?lost`)},
	{"OVERRUN", models.SeverityMedium, regexp.MustCompile(`(?i)overrun|overflow`)},
	{"FAULT", models.SeverityCritical, regexp.MustCompile(`(?i)fault|fail|error|err`)},
}

// dtcToken matches a standard DTC code like P0420 inside a text line.
var dtcToken = regexp.MustCompile(`(?i)[PCBU][0-9A-F]{4}`)

// textTimestampPatterns extract a timestamp from a free-form log line.
var textTimestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\((\d+\.\d+)\)`),
	regexp.MustCompile(`^(\d+\.\d+)`),
}

// remedies maps a fault category to suggested corrective action.
var remedies = map[models.FaultCategory]string{
	models.FaultBusTimingGap: "Check bus termination resistors (120 Ohm). Verify cable connections. " +
		"Check for short circuits. Review bus load and timing.",
	models.FaultErrorFrame: "Check physical layer (cables, connectors). " +
		"Verify bit timing configuration. Check for EMI interference.",
	models.FaultPeriodicTimeout: "Verify ECU is powered and connected. " +
		"Check message cycle time configuration. Review network load and priorities.",
	models.FaultDLCMismatch: "Update message definition in DBC file. " +
		"Check sender ECU configuration. Verify protocol version.",
	models.FaultUDSNegativeResponse: "Check diagnostic session state. " +
		"Verify security access if required. Review service request parameters.",
	models.FaultUDSDTC: "Read out the DTC with a diagnostic tester. " +
		"Fix the root cause before clearing the code.",
	models.FaultJ1939DTC: "Consult J1939-73 for DTC details. " +
		"Check related sensor/actuator. Clear DTC after fixing root cause.",
}

const genericRemedy = "Review log context and consult documentation for this error type."

// remedyFor returns the remedy for a category, falling back to the generic
// message for unmapped categories.
func remedyFor(category models.FaultCategory) string {
	if r, ok := remedies[category]; ok {
		return r
	}
	return genericRemedy
}
