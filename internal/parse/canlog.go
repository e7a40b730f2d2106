package parse

import (
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// Grammar variants of the generic CAN text family, tried in order. The
// dedicated J1939 pattern is listed for completeness; socket-style matches
// those lines first and flags them extended by identifier width.
var canLogGrammars = []struct {
	name string
	re   *regexp.Regexp
}{
	// (1000.000000) can0 123#0102030405060708
	{"socketcan", regexp.MustCompile(`^\((\d+\.\d+)\)\s+(\w+)\s+([0-9A-Fa-f]+)#([0-9A-Fa-f]*)$`)},
	// (1000.000000) can0 18FECA00#...  29-bit J1939 identifier
	{"j1939", regexp.MustCompile(`^\((\d+\.\d+)\)\s+(\w+)\s+(1[0-9A-Fa-f]{7})#([0-9A-Fa-f]*)$`)},
	// 0.000000 1 123x Rx d 8 01 02 03 04 05 06 07 08
	{"asc", regexp.MustCompile(`^(\d+\.\d+)\s+(\d+)\s+([0-9A-Fa-f]+x?)\s+(Rx|Tx)\s+d\s+(\d+)\s+([0-9A-Fa-f][0-9A-Fa-f\s]*)$`)},
	// 1 0.123 Rx 123 8 01 02 03 04 05 06 07 08   (PCAN trace, offset in ms)
	{"pcan", regexp.MustCompile(`^(\d+)\)?\s+(\d+\.\d+)\s+(Rx|Tx)\s+([0-9A-Fa-f]+)\s+(\d+)\s+([0-9A-Fa-f][0-9A-Fa-f\s]*)$`)},
	// 0.000,123,8,01 02 03 04 05 06 07 08
	{"simple", regexp.MustCompile(`^(\d+\.?\d*),\s*([0-9A-Fa-f]+),\s*(\d+),\s*([0-9A-Fa-f][0-9A-Fa-f,\s]*)$`)},
}

// NewCANLogParser builds the parser for the generic CAN text family:
// socket-style, J1939-extended, ASC-style, PCAN-style and simple CSV lines.
func NewCANLogParser(log *zap.SugaredLogger) Parser {
	return &textParser{format: FormatCANLog, parseLine: parseCANLogLine, log: log}
}

func parseCANLogLine(line string) (models.Frame, bool) {
	for _, g := range canLogGrammars {
		m := g.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch g.name {
		case "socketcan", "j1939":
			return parseSocketCANMatch(m)
		case "asc":
			return parseASCMatch(m)
		case "pcan":
			return parsePCANMatch(m)
		case "simple":
			return parseSimpleMatch(m)
		}
	}
	return models.Frame{}, false
}

func parseSocketCANMatch(m []string) (models.Frame, bool) {
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Frame{}, false
	}
	id, err := strconv.ParseUint(m[3], 16, 32)
	if err != nil {
		return models.Frame{}, false
	}
	data, err := hex.DecodeString(m[4])
	if err != nil || len(data) > 8 {
		return models.Frame{}, false
	}
	return models.Frame{
		Timestamp: ts,
		Channel:   m[2],
		ID:        uint32(id),
		Extended:  len(m[3]) > 3, // more than 11 bits of identifier
		DLC:       uint8(len(data)),
		Data:      data,
	}, true
}

func parseASCMatch(m []string) (models.Frame, bool) {
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Frame{}, false
	}
	idStr := m[3]
	hadSuffix := strings.HasSuffix(idStr, "x")
	idStr = strings.TrimSuffix(idStr, "x")
	id, err := strconv.ParseUint(idStr, 16, 32)
	if err != nil {
		return models.Frame{}, false
	}
	dlc, err := strconv.Atoi(m[5])
	if err != nil || dlc > 8 {
		return models.Frame{}, false
	}
	data, ok := hexBytes(strings.Fields(m[6]), dlc)
	if !ok {
		return models.Frame{}, false
	}
	return models.Frame{
		Timestamp: ts,
		Channel:   "can" + m[2],
		ID:        uint32(id),
		Extended:  hadSuffix || id > 0x7FF,
		DLC:       uint8(dlc),
		Data:      data,
	}, true
}

func parsePCANMatch(m []string) (models.Frame, bool) {
	offsetMS, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return models.Frame{}, false
	}
	id, err := strconv.ParseUint(m[4], 16, 32)
	if err != nil {
		return models.Frame{}, false
	}
	dlc, err := strconv.Atoi(m[5])
	if err != nil || dlc > 8 {
		return models.Frame{}, false
	}
	data, ok := hexBytes(strings.Fields(m[6]), dlc)
	if !ok {
		return models.Frame{}, false
	}
	return models.Frame{
		Timestamp: offsetMS / 1000.0,
		Channel:   "can0",
		ID:        uint32(id),
		Extended:  id > 0x7FF,
		DLC:       uint8(dlc),
		Data:      data,
	}, true
}

func parseSimpleMatch(m []string) (models.Frame, bool) {
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Frame{}, false
	}
	id, err := strconv.ParseUint(m[2], 16, 32)
	if err != nil {
		return models.Frame{}, false
	}
	dlc, err := strconv.Atoi(m[3])
	if err != nil || dlc > 8 {
		return models.Frame{}, false
	}
	cleaned := strings.NewReplacer(",", "", " ", "", "\t", "").Replace(m[4])
	data, err := hex.DecodeString(cleaned)
	if err != nil || len(data) < dlc {
		return models.Frame{}, false
	}
	data = data[:dlc]
	return models.Frame{
		Timestamp: ts,
		Channel:   "can0",
		ID:        uint32(id),
		Extended:  id > 0x7FF,
		DLC:       uint8(dlc),
		Data:      data,
	}, true
}

// hexBytes decodes the first dlc space-separated hex byte tokens. Extra
// tokens beyond dlc are dropped; fewer than dlc is a grammar violation
// because an emitted frame must satisfy len(Data) == DLC.
func hexBytes(tokens []string, dlc int) ([]byte, bool) {
	if len(tokens) < dlc {
		return nil, false
	}
	data := make([]byte, 0, dlc)
	for _, tok := range tokens[:dlc] {
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, false
		}
		data = append(data, byte(b))
	}
	return data, true
}
