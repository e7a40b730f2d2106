package parse

import (
	"encoding/hex"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// LIN trace line: LIN <time> <frame id> <hex data>
var linLine = regexp.MustCompile(`^LIN\s+(\d+\.\d+)\s+(\d+)\s+([0-9A-Fa-f]+)$`)

// NewLINParser builds the parser for LIN text traces. LIN frame identifiers
// are 6-bit but reuse the shared Frame model unchanged.
func NewLINParser(log *zap.SugaredLogger) Parser {
	return &textParser{format: FormatLIN, parseLine: parseLINLine, log: log}
}

func parseLINLine(line string) (models.Frame, bool) {
	m := linLine.FindStringSubmatch(line)
	if m == nil {
		return models.Frame{}, false
	}
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Frame{}, false
	}
	id, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return models.Frame{}, false
	}
	data, err := hex.DecodeString(m[3])
	if err != nil || len(data) > 8 {
		return models.Frame{}, false
	}
	return models.Frame{
		Timestamp: ts,
		Channel:   "lin",
		ID:        uint32(id),
		DLC:       uint8(len(data)),
		Data:      data,
	}, true
}
