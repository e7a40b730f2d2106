package dbc

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	edbc "go.einride.tech/can/pkg/dbc"
	"go.uber.org/zap"
)

// extendedIDFlag marks extended identifiers in raw DBC message ids.
const (
	extendedIDFlag = 0x80000000
	extendedIDMask = 0x1FFFFFFF
	maxStandardID  = 0x7FF
)

// LoadError reports that both the grammar library and the manual fallback
// rejected a database file. It is fatal for that file only.
type LoadError struct {
	Path        string
	PrimaryErr  error
	FallbackErr error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load DBC %s: grammar library: %v; manual parser: %v",
		e.Path, e.PrimaryErr, e.FallbackErr)
}

// Load compiles a DBC file into a layout table. The grammar library is the
// primary path; the hand-rolled line parser is the fallback. Both converge
// on the same Database shape so the decoder never knows which path ran.
func Load(path string, log *zap.SugaredLogger) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read database %s", path)
	}

	db, perr := parseGrammar(path, data)
	if perr != nil {
		log.Warnw("DBC grammar library rejected file, using manual parser",
			"path", path, "error", perr)
		var ferr error
		db, ferr = parseManual(path, data)
		if ferr != nil {
			return nil, &LoadError{Path: path, PrimaryErr: perr, FallbackErr: ferr}
		}
	}

	applyMessageAttributes(db, data)
	checkSignalBounds(db, log)
	return db, nil
}

// parseGrammar runs the einride DBC grammar over the file.
func parseGrammar(path string, data []byte) (db *Database, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("DBC grammar parse panicked: %v", r)
		}
	}()

	p := edbc.NewParser(path, data)
	if err := p.Parse(); err != nil {
		return nil, err
	}

	db = &Database{Path: path, Messages: make(map[uint32]*Message)}
	for _, def := range p.Defs() {
		switch d := def.(type) {
		case *edbc.NodesDef:
			for _, n := range d.NodeNames {
				db.Nodes = append(db.Nodes, string(n))
			}
		case *edbc.MessageDef:
			msg := convertMessageDef(d)
			db.Messages[msg.ID] = msg
		case *edbc.ValueDescriptionsDef:
			attachValueTable(db, d)
		}
	}
	return db, nil
}

func convertMessageDef(d *edbc.MessageDef) *Message {
	raw := uint32(d.MessageID)
	id := raw
	extended := raw&extendedIDFlag != 0
	if extended {
		id = raw & extendedIDMask
	} else if id > maxStandardID {
		extended = true
	}

	msg := &Message{
		ID:       id,
		Name:     string(d.Name),
		DLC:      uint8(d.Size),
		Sender:   string(d.Transmitter),
		Extended: extended,
		Signals:  make(map[string]*Signal, len(d.Signals)),
	}
	for i := range d.Signals {
		s := &d.Signals[i]
		sig := &Signal{
			Name:         string(s.Name),
			StartBit:     int(s.StartBit),
			Size:         int(s.Size),
			LittleEndian: !s.IsBigEndian,
			Signed:       s.IsSigned,
			Factor:       s.Factor,
			Offset:       s.Offset,
			Min:          s.Minimum,
			Max:          s.Maximum,
			Unit:         string(s.Unit),
		}
		for _, r := range s.Receivers {
			sig.Receivers = append(sig.Receivers, string(r))
		}
		msg.Signals[sig.Name] = sig
		msg.SignalOrder = append(msg.SignalOrder, sig.Name)
	}
	return msg
}

func attachValueTable(db *Database, d *edbc.ValueDescriptionsDef) {
	raw := uint32(d.MessageID)
	id := raw
	if raw&extendedIDFlag != 0 {
		id = raw & extendedIDMask
	}
	msg, ok := db.Messages[id]
	if !ok {
		return
	}
	sig, ok := msg.Signals[string(d.SignalName)]
	if !ok {
		return
	}
	if sig.Values == nil {
		sig.Values = make(map[int64]string, len(d.ValueDescriptions))
	}
	for _, v := range d.ValueDescriptions {
		sig.Values[int64(v.Value)] = string(v.Description)
	}
}

// Manual fallback grammar, one pattern per DBC construct.
var (
	reNodes   = regexp.MustCompile(`^BU_\s*:?\s*(.*)$`)
	reMessage = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+(\w+)`)
	reSignal  = regexp.MustCompile(`^SG_\s+(\w+)\s*(?:(m\d+|M)\s*)?:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]+)\|([^\]]+)\]\s*"([^"]*)"\s*(.*)$`)
	reValue   = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\w+)\s+(.*);`)
	reValPair = regexp.MustCompile(`(-?\d+)\s+"([^"]*)"`)
)

// parseManual is the hand-rolled fallback: line-by-line recognition of the
// node list, message and signal definitions, and value tables.
func parseManual(path string, data []byte) (*Database, error) {
	db := &Database{Path: path, Messages: make(map[uint32]*Message)}

	var current *Message
	for _, rawLine := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(rawLine)
		switch {
		case strings.HasPrefix(line, "BU_"):
			if m := reNodes.FindStringSubmatch(line); m != nil {
				db.Nodes = append(db.Nodes, strings.Fields(m[1])...)
			}
		case strings.HasPrefix(line, "BO_ "):
			current = nil
			if m := reMessage.FindStringSubmatch(line); m != nil {
				current = parseManualMessage(m)
				db.Messages[current.ID] = current
			}
		case strings.HasPrefix(line, "SG_"):
			if current == nil {
				continue
			}
			if sig := parseManualSignal(line); sig != nil {
				current.Signals[sig.Name] = sig
				current.SignalOrder = append(current.SignalOrder, sig.Name)
			}
		case strings.HasPrefix(line, "VAL_ "):
			parseManualValueTable(db, line)
		}
	}

	if len(db.Messages) == 0 && len(db.Nodes) == 0 {
		return nil, errors.Newf("no recognizable DBC content in %s", path)
	}
	return db, nil
}

func parseManualMessage(m []string) *Message {
	raw64, _ := strconv.ParseUint(m[1], 10, 64)
	raw := uint32(raw64)
	id := raw
	extended := raw&extendedIDFlag != 0
	if extended {
		id = raw & extendedIDMask
	} else if id > maxStandardID {
		extended = true
	}
	dlc, _ := strconv.Atoi(m[3])
	return &Message{
		ID:       id,
		Name:     m[2],
		DLC:      uint8(dlc),
		Sender:   m[4],
		Extended: extended,
		Signals:  make(map[string]*Signal),
	}
}

func parseManualSignal(line string) *Signal {
	m := reSignal.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	startBit, _ := strconv.Atoi(m[3])
	size, _ := strconv.Atoi(m[4])
	factor, err1 := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
	offset, err2 := strconv.ParseFloat(strings.TrimSpace(m[8]), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	minVal, _ := strconv.ParseFloat(strings.TrimSpace(m[9]), 64)
	maxVal, _ := strconv.ParseFloat(strings.TrimSpace(m[10]), 64)

	return &Signal{
		Name:         m[1],
		StartBit:     startBit,
		Size:         size,
		LittleEndian: m[5] == "1", // @1 = Intel, @0 = Motorola
		Signed:       m[6] == "-",
		Factor:       factor,
		Offset:       offset,
		Min:          minVal,
		Max:          maxVal,
		Unit:         m[11],
		Receivers:    strings.Fields(m[12]),
	}
}

func parseManualValueTable(db *Database, line string) {
	m := reValue.FindStringSubmatch(line)
	if m == nil {
		return
	}
	raw64, _ := strconv.ParseUint(m[1], 10, 64)
	id := uint32(raw64)
	if id&extendedIDFlag != 0 {
		id &= extendedIDMask
	}
	msg, ok := db.Messages[id]
	if !ok {
		return
	}
	sig, ok := msg.Signals[m[2]]
	if !ok {
		return
	}
	sig.Values = make(map[int64]string)
	for _, pair := range reValPair.FindAllStringSubmatch(m[3], -1) {
		v, _ := strconv.ParseInt(pair[1], 10, 64)
		sig.Values[v] = pair[2]
	}
}

// Message-level attributes and comments are extracted from the raw text by
// both load paths, so cycle times behave identically regardless of which
// grammar compiled the layouts.
var (
	reCycleTime = regexp.MustCompile(`BA_\s+"GenMsgCycleTime"\s+BO_\s+(\d+)\s+(\d+)\s*;`)
	reComment   = regexp.MustCompile(`CM_\s+BO_\s+(\d+)\s+"((?:[^"\\]|\\.)*)"`)
)

func applyMessageAttributes(db *Database, data []byte) {
	text := string(data)
	for _, m := range reCycleTime.FindAllStringSubmatch(text, -1) {
		raw64, _ := strconv.ParseUint(m[1], 10, 64)
		id := uint32(raw64)
		if id&extendedIDFlag != 0 {
			id &= extendedIDMask
		}
		if msg, ok := db.Messages[id]; ok {
			msg.CycleTime, _ = strconv.Atoi(m[2])
		}
	}
	for _, m := range reComment.FindAllStringSubmatch(text, -1) {
		raw64, _ := strconv.ParseUint(m[1], 10, 64)
		id := uint32(raw64)
		if id&extendedIDFlag != 0 {
			id &= extendedIDMask
		}
		if msg, ok := db.Messages[id]; ok {
			msg.Comment = m[2]
		}
	}
}

// checkSignalBounds reports signals whose declared bit span exceeds the
// owning message's DLC.
func checkSignalBounds(db *Database, log *zap.SugaredLogger) {
	for _, msg := range db.Messages {
		limit := int(msg.DLC) * 8
		for _, name := range msg.SignalOrder {
			sig := msg.Signals[name]
			if sig.StartBit+sig.Size > limit {
				w := fmt.Sprintf("%s.%s spans bits %d..%d beyond DLC %d",
					msg.Name, sig.Name, sig.StartBit, sig.StartBit+sig.Size-1, msg.DLC)
				db.Warnings = append(db.Warnings, w)
				log.Warnw("signal exceeds message DLC", "message", msg.Name,
					"signal", sig.Name, "dlc", msg.DLC)
			}
		}
	}
}
