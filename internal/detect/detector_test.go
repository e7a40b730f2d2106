package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"can-log-analyzer/internal/parse"
)

func newTestDetector() *Detector {
	log := zap.NewNop().Sugar()
	return New(parse.NewRegistry(log), log)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDetectByExtension(t *testing.T) {
	tests := []struct {
		name    string
		content string
		format  parse.Format
	}{
		{"trace.asc", "binary-ish content", parse.FormatASC},
		{"trace.blf", "whatever", parse.FormatBLF},
		{"trace.trc", "whatever", parse.FormatTRC},
		{"network.dbc", "BO_ 291 Test: 8 ECU", parse.FormatDBC},
		{"bus.ldf", "whatever", parse.FormatLIN},
		{"capture.pcap", "whatever", parse.FormatPCAP},
	}

	d := newTestDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.name, tt.content)
			r, err := d.Detect(path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, r.Format)
			assert.Equal(t, ConfidenceDefinite, r.Confidence)
		})
	}
}

func TestDetectAmbiguousExtensionUsesContent(t *testing.T) {
	d := newTestDetector()

	// .log with UDS content resolves to UDS, not the extension hint.
	path := writeTemp(t, "diag.log", "UDS 1.000 tester -> ecu 7F2231\n")
	r, err := d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatUDS, r.Format)

	// .txt with socket-style content resolves to the CAN text family.
	path = writeTemp(t, "dump.txt", "(1.000000) can0 123#0102\n")
	r, err = d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatCANLog, r.Format)

	// .log with unrecognizable content falls back to the extension hint.
	path = writeTemp(t, "odd.log", "completely free-form notes\n")
	r, err = d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatCANLog, r.Format)
}

func TestDetectByMagic(t *testing.T) {
	d := newTestDetector()

	path := writeTemp(t, "noext", "LOGG\x01\x02\x03 binary")
	r, err := d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatBLF, r.Format)
	assert.Equal(t, ConfidenceDefinite, r.Confidence)

	path = writeTemp(t, "capture.bin", string([]byte{0xD4, 0xC3, 0xB2, 0xA1, 0x00}))
	r, err = d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatPCAP, r.Format)
}

func TestDetectXMLVendor(t *testing.T) {
	d := newTestDetector()

	path := writeTemp(t, "export.bin", `<?xml version="1.0"?><CANalyzerExport></CANalyzerExport>`)
	r, err := d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatCANalyzerXML, r.Format)

	path = writeTemp(t, "plain.bin", `<?xml version="1.0"?><root></root>`)
	r, err = d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatXML, r.Format)
}

func TestDetectByTrialParse(t *testing.T) {
	d := newTestDetector()

	// No extension hint, no magic, and the simple CSV shape has no content
	// pattern; trial parse settles it.
	path := writeTemp(t, "noext_csv", "0.500,123,3,01 02 03\n1.000,456,1,FF\n")
	r, err := d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatCANLog, r.Format)
	assert.Equal(t, ConfidenceDefinite, r.Confidence)
}

func TestDetectDefaultsHeuristically(t *testing.T) {
	d := newTestDetector()

	path := writeTemp(t, "mystery", "nothing recognizable at all\n")
	r, err := d.Detect(path)
	require.NoError(t, err)
	assert.Equal(t, parse.FormatCANLog, r.Format)
	assert.Equal(t, ConfidenceHeuristic, r.Confidence)
}

func TestDetectMissingFile(t *testing.T) {
	d := newTestDetector()
	_, err := d.Detect("/nonexistent/trace.log")
	assert.Error(t, err)
}

func TestParserForResult(t *testing.T) {
	d := newTestDetector()
	p := d.Parser(Result{Format: parse.FormatASC})
	assert.Equal(t, parse.FormatASC, p.Format())

	// Vendor formats without a dedicated parser fall back.
	p = d.Parser(Result{Format: parse.FormatCANalyzerCSV})
	assert.Equal(t, parse.FormatCANLog, p.Format())
}
