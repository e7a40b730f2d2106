package dbc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleDBC = `VERSION ""

NS_ :

BS_:

BU_: ECM TCM Dash

BO_ 291 EngineData: 8 ECM
 SG_ EngineSpeed : 0|16@1+ (0.125,0) [0|8031.875] "rpm" Dash
 SG_ CoolantTemp : 16|8@1+ (1,-40) [-40|215] "degC" Dash
 SG_ GearState : 24|4@1+ (1,0) [0|0] "" TCM

BO_ 2566834942 DM1Status: 8 ECM
 SG_ LampStatus : 0|8@1+ (1,0) [0|0] "" Dash

VAL_ 291 GearState 0 "Park" 1 "Reverse" 2 "Neutral" 3 "Drive" ;

BA_ "GenMsgCycleTime" BO_ 291 100;

CM_ BO_ 291 "Primary engine broadcast";
`

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func writeDBC(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.dbc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesMessagesAndSignals(t *testing.T) {
	db, err := Load(writeDBC(t, sampleDBC), testLogger())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"ECM", "TCM", "Dash"}, db.Nodes)
	require.Len(t, db.Messages, 2)

	msg, ok := db.Message(0x123)
	require.True(t, ok)
	assert.Equal(t, "EngineData", msg.Name)
	assert.Equal(t, uint8(8), msg.DLC)
	assert.Equal(t, "ECM", msg.Sender)
	assert.False(t, msg.Extended)

	sig, ok := msg.Signals["EngineSpeed"]
	require.True(t, ok)
	assert.Equal(t, 0, sig.StartBit)
	assert.Equal(t, 16, sig.Size)
	assert.True(t, sig.LittleEndian)
	assert.False(t, sig.Signed)
	assert.Equal(t, 0.125, sig.Factor)
	assert.Equal(t, 0.0, sig.Offset)
	assert.Equal(t, "rpm", sig.Unit)

	temp := msg.Signals["CoolantTemp"]
	require.NotNil(t, temp)
	assert.Equal(t, -40.0, temp.Offset)
	assert.Equal(t, -40.0, temp.Min)
	assert.Equal(t, 215.0, temp.Max)
}

func TestLoadStripsExtendedIDFlag(t *testing.T) {
	db, err := Load(writeDBC(t, sampleDBC), testLogger())
	require.NoError(t, err)

	// 2566834942 = 0x98FECAFE: high bit flags extended, masked to 29 bits.
	msg, ok := db.Message(0x18FECAFE)
	require.True(t, ok)
	assert.True(t, msg.Extended)
	assert.Equal(t, "DM1Status", msg.Name)
}

func TestLoadValueTable(t *testing.T) {
	db, err := Load(writeDBC(t, sampleDBC), testLogger())
	require.NoError(t, err)

	msg, _ := db.Message(0x123)
	gear := msg.Signals["GearState"]
	require.NotNil(t, gear)
	assert.Equal(t, "Park", gear.Values[0])
	assert.Equal(t, "Drive", gear.Values[3])
}

func TestLoadMessageAttributes(t *testing.T) {
	db, err := Load(writeDBC(t, sampleDBC), testLogger())
	require.NoError(t, err)

	msg, _ := db.Message(0x123)
	assert.Equal(t, 100, msg.CycleTime)
	assert.Equal(t, "Primary engine broadcast", msg.Comment)
}

func TestLoadWarnsOnSignalBeyondDLC(t *testing.T) {
	content := `BU_: ECU

BO_ 100 Short: 2 ECU
 SG_ TooWide : 0|32@1+ (1,0) [0|0] "" ECU
`
	db, err := Load(writeDBC(t, content), testLogger())
	require.NoError(t, err)

	require.NotEmpty(t, db.Warnings)
	assert.Contains(t, db.Warnings[0], "TooWide")

	// The signal is reported, not truncated.
	msg, _ := db.Message(100)
	assert.Equal(t, 32, msg.Signals["TooWide"].Size)
}

func TestLoadRejectsNonDBCContent(t *testing.T) {
	_, err := Load(writeDBC(t, "this is not a dbc file at all\n"), testLogger())
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/network.dbc", testLogger())
	assert.Error(t, err)
}

func TestParseManualDirectly(t *testing.T) {
	db, err := parseManual("test.dbc", []byte(sampleDBC))
	require.NoError(t, err)

	assert.Len(t, db.Messages, 2)
	msg, ok := db.Messages[0x123]
	require.True(t, ok)
	assert.Equal(t, []string{"EngineSpeed", "CoolantTemp", "GearState"}, msg.SignalOrder)

	sig := msg.Signals["GearState"]
	require.NotNil(t, sig)
	assert.Equal(t, 24, sig.StartBit)
	assert.Equal(t, 4, sig.Size)
}

func TestStatistics(t *testing.T) {
	db, err := Load(writeDBC(t, sampleDBC), testLogger())
	require.NoError(t, err)

	s := db.Statistics()
	assert.Equal(t, 2, s.Messages)
	assert.Equal(t, 4, s.Signals)
	assert.Equal(t, 3, s.Nodes)
	assert.Equal(t, 1, s.ExtendedIDs)
	assert.Equal(t, 1, s.StandardIDs)
	assert.Equal(t, 1, s.WithCycleTime)
	assert.Equal(t, 1, s.ValueTables)
}
