package parse

import (
	"regexp"

	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// Vector ASC message line: <time> <channel> <id[x]> Rx|Tx d <dlc> <bytes...>
var ascLine = regexp.MustCompile(`^(\d+\.\d+)\s+(\d+)\s+([0-9A-Fa-f]+x?)\s+(Rx|Tx)\s+d\s+(\d+)\s+([0-9A-Fa-f][0-9A-Fa-f\s]*)$`)

// NewASCParser builds the parser for Vector ASC (ASCII) traces. Only the
// first DLC data bytes are kept even when the line carries more hex pairs.
func NewASCParser(log *zap.SugaredLogger) Parser {
	return &textParser{format: FormatASC, parseLine: parseASCLine, log: log}
}

func parseASCLine(line string) (models.Frame, bool) {
	m := ascLine.FindStringSubmatch(line)
	if m == nil {
		return models.Frame{}, false
	}
	return parseASCMatch(m)
}
