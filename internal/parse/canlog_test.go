package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func parseAll(t *testing.T, p Parser, path string, chunkSize int) []models.Frame {
	t.Helper()
	var frames []models.Frame
	for chunk, err := range p.Parse(path, chunkSize) {
		require.NoError(t, err)
		frames = append(frames, chunk...)
	}
	return frames
}

func TestParseSocketCANLine(t *testing.T) {
	frame, ok := parseCANLogLine("(1000.000000) can0 123#0102030405060708")
	require.True(t, ok)

	assert.Equal(t, 1000.0, frame.Timestamp)
	assert.Equal(t, "can0", frame.Channel)
	assert.Equal(t, uint32(0x123), frame.ID)
	assert.False(t, frame.Extended)
	assert.Equal(t, uint8(8), frame.DLC)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, frame.Data)
}

func TestParseJ1939Line(t *testing.T) {
	frame, ok := parseCANLogLine("(12.500000) can1 18FECA00#0000FF")
	require.True(t, ok)

	assert.Equal(t, uint32(0x18FECA00), frame.ID)
	assert.True(t, frame.Extended)
	assert.Equal(t, uint32(0xFECA), frame.PGN())
	assert.Equal(t, uint8(3), frame.DLC)
}

func TestParseASCStyleLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		id       uint32
		extended bool
		dlc      uint8
	}{
		{"standard", "0.100000 1 123 Rx d 4 DE AD BE EF", 0x123, false, 4},
		{"extended suffix", "0.200000 1 18FF0001x Rx d 2 01 02", 0x18FF0001, true, 2},
		{"extra data tokens dropped", "0.300000 2 456 Tx d 2 01 02 03 04", 0x456, false, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, ok := parseCANLogLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.id, frame.ID)
			assert.Equal(t, tt.extended, frame.Extended)
			assert.Equal(t, tt.dlc, frame.DLC)
			assert.Len(t, frame.Data, int(tt.dlc))
		})
	}
}

func TestParsePCANLineConvertsMillisecondOffsets(t *testing.T) {
	frame, ok := parseCANLogLine("1) 250.000 Rx 123 2 AA BB")
	require.True(t, ok)

	assert.Equal(t, 0.25, frame.Timestamp)
	assert.Equal(t, "can0", frame.Channel)
	assert.Equal(t, []byte{0xAA, 0xBB}, frame.Data)
}

func TestParseSimpleCSVLine(t *testing.T) {
	frame, ok := parseCANLogLine("0.500,123,3,01 02 03")
	require.True(t, ok)

	assert.Equal(t, 0.5, frame.Timestamp)
	assert.Equal(t, uint32(0x123), frame.ID)
	assert.Equal(t, []byte{1, 2, 3}, frame.Data)
}

func TestParseLineRejectsShortPayload(t *testing.T) {
	// DLC declares more bytes than the line carries.
	_, ok := parseCANLogLine("0.100000 1 123 Rx d 8 01 02")
	assert.False(t, ok)

	_, ok = parseCANLogLine("0.500,123,8,01 02")
	assert.False(t, ok)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"",
		"not a frame",
		"(abc) can0 123#01",
		"(1.0) can0 123#0102030405060708090A", // more than 8 bytes
	} {
		_, ok := parseCANLogLine(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestParseStreamsInChunks(t *testing.T) {
	content := ""
	for i := 0; i < 25; i++ {
		content += "(1.000000) can0 123#01\n"
	}
	path := writeTemp(t, "chunks.log", content)

	p := NewCANLogParser(testLogger())
	var batches int
	var total int
	for chunk, err := range p.Parse(path, 10) {
		require.NoError(t, err)
		batches++
		total += len(chunk)
		assert.LessOrEqual(t, len(chunk), 10)
	}
	assert.Equal(t, 3, batches)
	assert.Equal(t, 25, total)
}

func TestParseSkipsCommentsAndHeaders(t *testing.T) {
	content := `# comment line
// another comment
Time Channel ID DLC Data
(1.000000) can0 123#01
this line is garbage
(2.000000) can0 456#02
`
	path := writeTemp(t, "mixed.log", content)

	p := NewCANLogParser(testLogger())
	frames := parseAll(t, p, path, 0)
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(0x123), frames[0].ID)
	assert.Equal(t, uint32(0x456), frames[1].ID)

	stats, err := p.Stats(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalMessages)
	assert.Equal(t, uint64(1), stats.SkippedLines)
}

func TestParseAbandonedIterationStops(t *testing.T) {
	content := ""
	for i := 0; i < 50; i++ {
		content += "(1.000000) can0 123#01\n"
	}
	path := writeTemp(t, "abandon.log", content)

	p := NewCANLogParser(testLogger())
	var seen int
	for chunk, err := range p.Parse(path, 10) {
		require.NoError(t, err)
		seen += len(chunk)
		break
	}
	assert.Equal(t, 10, seen)
}

func TestParseMissingFileYieldsError(t *testing.T) {
	p := NewCANLogParser(testLogger())
	var gotErr error
	for _, err := range p.Parse("/nonexistent/file.log", 0) {
		gotErr = err
	}
	assert.Error(t, gotErr)
}

func TestValidate(t *testing.T) {
	good := writeTemp(t, "good.log", "(1.000000) can0 123#01\n")
	bad := writeTemp(t, "bad.log", "nothing here\nat all\n")

	p := NewCANLogParser(testLogger())
	assert.True(t, p.Validate(good))
	assert.False(t, p.Validate(bad))
}

func TestValidateSkipsPreamble(t *testing.T) {
	// A long comment/header preamble must not exhaust the sniff budget.
	content := ""
	for i := 0; i < 8; i++ {
		content += "# preamble comment\n"
	}
	content += "date Mon Jan 1 00:00:00 2024\n"
	content += "base hex timestamps absolute\n"
	content += "Time Channel ID DLC Data\n"
	content += "\n\n"
	content += "(1.000000) can0 123#01\n"
	path := writeTemp(t, "preamble.log", content)

	p := NewCANLogParser(testLogger())
	assert.True(t, p.Validate(path))
}

func TestLINParser(t *testing.T) {
	path := writeTemp(t, "trace.lin", "LIN 1.500 10 DEAD\nLIN 2.000 63 BEEF\n")

	p := NewLINParser(testLogger())
	frames := parseAll(t, p, path, 0)
	require.Len(t, frames, 2)
	assert.Equal(t, 1.5, frames[0].Timestamp)
	assert.Equal(t, uint32(10), frames[0].ID)
	assert.Equal(t, "lin", frames[0].Channel)
	assert.Equal(t, []byte{0xDE, 0xAD}, frames[0].Data)
}

func TestUDSParser(t *testing.T) {
	path := writeTemp(t, "trace.uds", "UDS 3.000 tester -> ecu 7F2231\n")

	p := NewUDSParser(testLogger())
	frames := parseAll(t, p, path, 0)
	require.Len(t, frames, 1)
	assert.Equal(t, "tester->ecu", frames[0].Channel)
	assert.Equal(t, []byte{0x7F, 0x22, 0x31}, frames[0].Data)
}

func TestStatsSummary(t *testing.T) {
	content := `(0.000000) can0 123#0102030405060708
(0.500000) can0 123#0102030405060708
(1.000000) can1 18FECA00#0102
(2.000000) can0 456#01
`
	path := writeTemp(t, "stats.log", content)

	p := NewCANLogParser(testLogger())
	stats, err := p.Stats(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), stats.TotalMessages)
	assert.Equal(t, 3, stats.UniqueIDs)
	assert.Equal(t, uint64(1), stats.ExtendedIDs)
	assert.Equal(t, uint64(3), stats.StandardIDs)
	assert.Equal(t, []string{"can0", "can1"}, stats.Channels)
	assert.Equal(t, 0.0, stats.TimeRange.Start)
	assert.Equal(t, 2.0, stats.TimeRange.End)
	assert.InDelta(t, 2.0, stats.MessageRate, 0.001)
	assert.Equal(t, uint64(2), stats.IDFrequency[0x123])
	require.NotEmpty(t, stats.TopIDs)
	assert.Equal(t, uint32(0x123), stats.TopIDs[0].ID)
}

func TestRegistryFallback(t *testing.T) {
	r := NewRegistry(testLogger())

	assert.Equal(t, FormatCANLog, r.Get(FormatCANLog).Format())
	assert.Equal(t, FormatCANLog, r.Get(FormatTRC).Format())
	assert.Equal(t, FormatCANLog, r.Get(FormatCANalyzerCSV).Format())
	assert.Equal(t, FormatASC, r.Get(FormatASC).Format())
}

func TestBLFStubValidatesMagic(t *testing.T) {
	blf := writeTemp(t, "trace.blf", "LOGG\x00\x00\x00\x00binary junk")
	text := writeTemp(t, "trace.log", "(1.000000) can0 123#01\n")

	p := NewBLFParser(testLogger())
	assert.True(t, p.Validate(blf))
	assert.False(t, p.Validate(text))

	stats, err := p.Stats(blf)
	require.NoError(t, err)
	assert.NotEmpty(t, stats.Note)
	assert.Zero(t, stats.TotalMessages)
}
