package parse

import (
	"encoding/hex"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// UDS trace line: UDS <time> <source> -> <target> <hex payload>
var udsLine = regexp.MustCompile(`^UDS\s+(\d+\.\d+)\s+(\w+)\s+->\s+(\w+)\s+([0-9A-Fa-f]+)$`)

// NewUDSParser builds the parser for UDS diagnostic text traces. The payload
// starts with the service identifier; the fault detector reads negative
// responses (0x7F ...) straight from Frame.Data.
func NewUDSParser(log *zap.SugaredLogger) Parser {
	return &textParser{format: FormatUDS, parseLine: parseUDSLine, log: log}
}

func parseUDSLine(line string) (models.Frame, bool) {
	m := udsLine.FindStringSubmatch(line)
	if m == nil {
		return models.Frame{}, false
	}
	ts, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return models.Frame{}, false
	}
	data, err := hex.DecodeString(m[4])
	if err != nil || len(data) == 0 || len(data) > 8 {
		return models.Frame{}, false
	}
	return models.Frame{
		Timestamp: ts,
		Channel:   m[2] + "->" + m[3],
		DLC:       uint8(len(data)),
		Data:      data,
	}, true
}
