package faults

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"can-log-analyzer/internal/dbc"
	"can-log-analyzer/internal/models"
)

// Defaults for the timing rules.
const (
	DefaultGapThresholdMS  = 100.0
	DefaultCycleTimeFactor = 2.0
)

// Detector runs the protocol-aware fault rules over a frame sequence.
// Detection is pure: the same frames and layouts always yield the same
// records, so running it twice never doubles the fault count.
type Detector struct {
	gapThresholdMS  float64
	cycleTimeFactor float64
	log             *zap.SugaredLogger
}

// Option configures a Detector.
type Option func(*Detector)

// WithGapThreshold sets the silent-bus gap threshold in milliseconds.
func WithGapThreshold(ms float64) Option {
	return func(d *Detector) {
		if ms > 0 {
			d.gapThresholdMS = ms
		}
	}
}

// WithCycleTimeFactor sets the multiple of a message's declared cycle time
// beyond which the message is considered timed out.
func WithCycleTimeFactor(factor float64) Option {
	return func(d *Detector) {
		if factor > 0 {
			d.cycleTimeFactor = factor
		}
	}
}

// New builds a detector with the default thresholds unless overridden.
func New(log *zap.SugaredLogger, opts ...Option) *Detector {
	d := &Detector{
		gapThresholdMS:  DefaultGapThresholdMS,
		cycleTimeFactor: DefaultCycleTimeFactor,
		log:             log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs every frame-level rule. db may be nil; the DBC-dependent rules
// are skipped in that case. Records come back sorted ascending by timestamp
// with remedies attached.
func (d *Detector) Detect(frames []models.Frame, db *dbc.Database) []models.FaultRecord {
	var records []models.FaultRecord
	records = append(records, d.DetectBusGaps(frames)...)
	records = append(records, d.DetectErrorFrames(frames)...)
	records = append(records, d.DetectJ1939DTCs(frames)...)
	records = append(records, d.DetectUDS(frames)...)
	if db != nil {
		records = append(records, d.DetectDLCMismatches(frames, db)...)
		records = append(records, d.DetectTimeouts(frames, db)...)
	}
	return finalize(records)
}

// sortedByTimestamp returns a time-ordered copy. The timing rules order
// frames themselves so that input assembled from several files is judged by
// real elapsed time, not arrival order.
func sortedByTimestamp(frames []models.Frame) []models.Frame {
	out := append([]models.Frame(nil), frames...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// DetectBusGaps flags silences longer than the configured threshold. The
// fault is stamped at the last frame before the silence, where the bus
// stopped.
func (d *Detector) DetectBusGaps(frames []models.Frame) []models.FaultRecord {
	frames = sortedByTimestamp(frames)
	var records []models.FaultRecord
	for i := 1; i < len(frames); i++ {
		gapMS := (frames[i].Timestamp - frames[i-1].Timestamp) * 1000.0
		if gapMS <= d.gapThresholdMS {
			continue
		}
		prev := frames[i-1]
		records = append(records, models.FaultRecord{
			Timestamp: prev.Timestamp,
			Category:  models.FaultBusTimingGap,
			Severity:  models.SeverityCritical,
			Code:      "E_BUS_OFF",
			Description: fmt.Sprintf(
				"Potential bus-off detected. Gap of %.1fms between messages (threshold %.1fms)",
				gapMS, d.gapThresholdMS),
			Source:     prev.Channel,
			FrameID:    prev.ID,
			HasFrameID: true,
		})
	}
	return records
}

// DetectErrorFrames flags frames the capture layer marked as error frames.
func (d *Detector) DetectErrorFrames(frames []models.Frame) []models.FaultRecord {
	var records []models.FaultRecord
	for _, f := range frames {
		if !f.Error {
			continue
		}
		records = append(records, models.FaultRecord{
			Timestamp:   f.Timestamp,
			Category:    models.FaultErrorFrame,
			Severity:    models.SeverityHigh,
			Code:        "E_CAN_ERROR_FRAME",
			Description: fmt.Sprintf("CAN error frame on %s", f.Channel),
			Source:      f.Channel,
			FrameID:     f.ID,
			HasFrameID:  true,
			Data:        f.Data,
		})
	}
	return records
}

// DetectJ1939DTCs decodes DM1/DM2 diagnostic trouble code broadcasts from
// extended-identifier frames.
func (d *Detector) DetectJ1939DTCs(frames []models.Frame) []models.FaultRecord {
	var records []models.FaultRecord
	for _, f := range frames {
		if !f.Extended {
			continue
		}
		var severity models.Severity
		var active string
		switch f.PGN() {
		case pgnDM1:
			severity, active = models.SeverityCritical, "active"
		case pgnDM2:
			severity, active = models.SeverityMedium, "previously active"
		default:
			continue
		}

		// DTC groups start after the 2-byte lamp status, 4 bytes each.
		for i := 2; i+3 < len(f.Data); i += 4 {
			spn := uint32(f.Data[i]) |
				uint32(f.Data[i+1])<<8 |
				(uint32(f.Data[i+2]&0xE0) << 11)
			fmi := f.Data[i+2] & 0x1F
			if spn == 0 {
				continue
			}
			name, ok := spnNames[spn]
			if !ok {
				name = fmt.Sprintf("SPN %d", spn)
			}
			records = append(records, models.FaultRecord{
				Timestamp: f.Timestamp,
				Category:  models.FaultJ1939DTC,
				Severity:  severity,
				Code:      fmt.Sprintf("SPN%d_FMI%d", spn, fmi),
				Description: fmt.Sprintf("J1939 %s DTC: %s (SPN %d, FMI %d)",
					active, name, spn, fmi),
				Source:     f.Channel,
				FrameID:    f.ID,
				HasFrameID: true,
				Data:       f.Data,
			})
		}
	}
	return records
}

// DetectUDS flags negative diagnostic responses and decodes stored trouble
// codes from read-DTC responses.
func (d *Detector) DetectUDS(frames []models.Frame) []models.FaultRecord {
	var records []models.FaultRecord
	for _, f := range frames {
		switch {
		case len(f.Data) >= 3 && f.Data[0] == udsNegativeResponse:
			nrc := f.Data[2]
			desc, ok := nrcDescriptions[nrc]
			if !ok {
				desc = "Unknown NRC"
			}
			records = append(records, models.FaultRecord{
				Timestamp: f.Timestamp,
				Category:  models.FaultUDSNegativeResponse,
				Severity:  models.SeverityMedium,
				Code:      fmt.Sprintf("UDS_NRC_%02X", nrc),
				Description: fmt.Sprintf(
					"UDS negative response to service 0x%02X: %s", f.Data[1], desc),
				Source:     f.Channel,
				FrameID:    f.ID,
				HasFrameID: true,
				Data:       f.Data,
			})

		case len(f.Data) >= 2 && f.Data[0] == udsReadDTCResponse:
			records = append(records, decodeUDSDTCs(f)...)
		}
	}
	return records
}

// decodeUDSDTCs expands the 3-byte DTC groups of a 0x59 response into the
// standard P/C/B/U code notation.
func decodeUDSDTCs(f models.Frame) []models.FaultRecord {
	var records []models.FaultRecord
	for i := 2; i+2 < len(f.Data); i += 3 {
		high, low, status := f.Data[i], f.Data[i+1], f.Data[i+2]
		if high == 0 && low == 0 {
			continue
		}
		class := dtcClassLetters[(high>>6)&0x3]
		digit := (high >> 4) & 0x3
		rest := (uint16(high&0xF) << 8) | uint16(low)
		code := fmt.Sprintf("%c%01X%03X", class, digit, rest)

		severity := models.SeverityMedium
		if status&0x01 != 0 {
			severity = models.SeverityHigh
		}
		records = append(records, models.FaultRecord{
			Timestamp: f.Timestamp,
			Category:  models.FaultUDSDTC,
			Severity:  severity,
			Code:      code,
			Description: fmt.Sprintf("Stored DTC %s (status 0x%02X)",
				code, status),
			Source:     f.Channel,
			FrameID:    f.ID,
			HasFrameID: true,
			Data:       f.Data,
		})
	}
	return records
}

// DetectDLCMismatches compares each frame's DLC against its DBC declaration.
func (d *Detector) DetectDLCMismatches(frames []models.Frame, db *dbc.Database) []models.FaultRecord {
	var records []models.FaultRecord
	for _, f := range frames {
		msg, ok := db.Message(f.ID)
		if !ok || f.DLC == msg.DLC {
			continue
		}
		records = append(records, models.FaultRecord{
			Timestamp: f.Timestamp,
			Category:  models.FaultDLCMismatch,
			Severity:  models.SeverityMedium,
			Code:      "E_DLC_MISMATCH",
			Description: fmt.Sprintf("%s: DLC %d does not match declared %d",
				msg.Name, f.DLC, msg.DLC),
			Source:     f.Channel,
			FrameID:    f.ID,
			HasFrameID: true,
			Data:       f.Data,
		})
	}
	return records
}

// DetectTimeouts flags periodic messages whose observed inter-arrival gap
// exceeds the configured multiple of their declared cycle time.
func (d *Detector) DetectTimeouts(frames []models.Frame, db *dbc.Database) []models.FaultRecord {
	frames = sortedByTimestamp(frames)
	var records []models.FaultRecord
	lastSeen := make(map[uint32]float64)
	for _, f := range frames {
		msg, ok := db.Message(f.ID)
		if !ok || msg.CycleTime <= 0 {
			continue
		}
		if prev, seen := lastSeen[f.ID]; seen {
			gapMS := (f.Timestamp - prev) * 1000.0
			limit := d.cycleTimeFactor * float64(msg.CycleTime)
			if gapMS > limit {
				records = append(records, models.FaultRecord{
					Timestamp: prev,
					Category:  models.FaultPeriodicTimeout,
					Severity:  models.SeverityHigh,
					Code:      "E_MSG_TIMEOUT",
					Description: fmt.Sprintf(
						"%s missed its %dms cycle: %.1fms gap (limit %.1fms)",
						msg.Name, msg.CycleTime, gapMS, limit),
					Source:     f.Channel,
					FrameID:    f.ID,
					HasFrameID: true,
				})
			}
		}
		lastSeen[f.ID] = f.Timestamp
	}
	return records
}

// DetectText scans unstructured log lines with the keyword patterns. At most
// one fault per line; a standard DTC token upgrades the record to a DTC code.
func (d *Detector) DetectText(lines []string) []models.FaultRecord {
	var records []models.FaultRecord
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		for _, p := range textPatterns {
			if !p.re.MatchString(trimmed) {
				continue
			}
			rec := models.FaultRecord{
				Timestamp:   textTimestamp(trimmed),
				Category:    models.FaultTextPattern,
				Severity:    p.severity,
				Code:        p.kind,
				Description: fmt.Sprintf("%s indication: %s", p.kind, trimmed),
				Source:      "text",
			}
			if token := dtcToken.FindString(trimmed); token != "" {
				rec.Code = strings.ToUpper(token)
				rec.Severity = models.SeverityHigh
				rec.Description = fmt.Sprintf("DTC %s reported: %s", rec.Code, trimmed)
			}
			records = append(records, rec)
			break
		}
	}
	return finalize(records)
}

func textTimestamp(line string) float64 {
	for _, re := range textTimestampPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			var ts float64
			fmt.Sscanf(m[1], "%f", &ts)
			return ts
		}
	}
	return 0
}

// finalize sorts records by timestamp and fills in remedies.
func finalize(records []models.FaultRecord) []models.FaultRecord {
	for i := range records {
		if records[i].Remedy == "" {
			records[i].Remedy = remedyFor(records[i].Category)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	return records
}

// Summary aggregates a fault list for reporting.
func Summary(records []models.FaultRecord) models.FaultSummary {
	s := models.FaultSummary{
		Total:      len(records),
		BySeverity: make(map[models.Severity]int),
		ByCategory: make(map[models.FaultCategory]int),
		BySource:   make(map[string]int),
	}
	seen := make(map[string]bool)
	for i, r := range records {
		s.BySeverity[r.Severity]++
		s.ByCategory[r.Category]++
		if r.Source != "" {
			s.BySource[r.Source]++
		}
		if !seen[r.Code] {
			seen[r.Code] = true
			s.UniqueCodes = append(s.UniqueCodes, r.Code)
		}
		if i == 0 || r.Timestamp < s.TimeRange.Start {
			s.TimeRange.Start = r.Timestamp
		}
		if r.Timestamp > s.TimeRange.End {
			s.TimeRange.End = r.Timestamp
		}
	}
	sort.Strings(s.UniqueCodes)
	return s
}
