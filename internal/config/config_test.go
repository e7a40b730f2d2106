package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "vcan0", cfg.CANInterface)
	assert.Equal(t, 10000, cfg.ChunkSize)
	assert.Equal(t, 100.0, cfg.GapThresholdMS)
	assert.Equal(t, 2.0, cfg.CycleTimeFactor)
	assert.Equal(t, "localhost", cfg.ClickHouseHost)
	assert.Equal(t, 9000, cfg.ClickHousePort)
	assert.Equal(t, "can_frames", cfg.ClickHouseTable)
	assert.Equal(t, "can_faults", cfg.ClickHouseFaultTable)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Empty(t, cfg.CANFilters)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CAN_INTERFACE", "can1")
	t.Setenv("GAP_THRESHOLD_MS", "250.5")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("CAN_FILTERS", "123,18FECA00")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "can1", cfg.CANInterface)
	assert.Equal(t, 250.5, cfg.GapThresholdMS)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, []uint32{0x123, 0x18FECA00}, cfg.CANFilters)
}

func TestLoadInfluxDBSettings(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://influx.example.com:8086")
	t.Setenv("INFLUXDB_TOKEN", "secret")
	t.Setenv("INFLUXDB_BUCKET", "frames")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "http://influx.example.com:8086", cfg.InfluxDBURL)
	assert.Equal(t, "secret", cfg.InfluxDBToken)
	assert.Equal(t, "frames", cfg.InfluxDBBucket)
	assert.Equal(t, "my-org", cfg.InfluxDBOrg)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "CLICKHOUSE_HOST=db.example.com\nCYCLE_TIME_FACTOR=3.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Cleanup(func() {
		os.Unsetenv("CLICKHOUSE_HOST")
		os.Unsetenv("CYCLE_TIME_FACTOR")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.example.com", cfg.ClickHouseHost)
	assert.Equal(t, 3.0, cfg.CycleTimeFactor)
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("GAP_THRESHOLD_MS", "-5")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, 100.0, cfg.GapThresholdMS)
}

func TestParseFilters(t *testing.T) {
	assert.Equal(t, []uint32{0x123, 0x7FF}, parseFilters("123, 7FF"))
	assert.Empty(t, parseFilters(""))
	assert.Empty(t, parseFilters("zz"))
}
