package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// CAN Interface
	CANInterface  string
	CANFilters    []uint32
	StatsInterval int

	// Ingestion
	ChunkSize       int
	GapThresholdMS  float64
	CycleTimeFactor float64

	// ClickHouse
	ClickHouseHost       string
	ClickHousePort       int
	ClickHouseDatabase   string
	ClickHouseUsername   string
	ClickHousePassword   string
	ClickHouseTable      string
	ClickHouseFaultTable string

	// InfluxDB
	InfluxDBURL    string
	InfluxDBToken  string
	InfluxDBOrg    string
	InfluxDBBucket string

	// General
	BatchSize int
}

// Load reads configuration from the environment, optionally seeded from a
// .env file. A missing .env file is not an error; defaults apply.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to load %s", envFile)
	}

	config := &Config{
		CANInterface:         getEnv("CAN_INTERFACE", "vcan0"),
		CANFilters:           parseFilters(getEnv("CAN_FILTERS", "")),
		StatsInterval:        getEnvInt("STATS_INTERVAL", 10),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 10000),
		GapThresholdMS:       getEnvFloat("GAP_THRESHOLD_MS", 100.0),
		CycleTimeFactor:      getEnvFloat("CYCLE_TIME_FACTOR", 2.0),
		ClickHouseHost:       getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:       getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase:   getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUsername:   getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword:   getEnv("CLICKHOUSE_PASSWORD", ""),
		ClickHouseTable:      getEnv("CLICKHOUSE_TABLE", "can_frames"),
		ClickHouseFaultTable: getEnv("CLICKHOUSE_FAULT_TABLE", "can_faults"),
		InfluxDBURL:          getEnv("INFLUXDB_URL", "http://localhost:8086"),
		InfluxDBToken:        getEnv("INFLUXDB_TOKEN", ""),
		InfluxDBOrg:          getEnv("INFLUXDB_ORG", "my-org"),
		InfluxDBBucket:       getEnv("INFLUXDB_BUCKET", "can_frames"),
		BatchSize:            getEnvInt("BATCH_SIZE", 1000),
	}
	return config, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.Trim(strings.TrimSpace(v), `"'`)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

// parseFilters parses comma-separated hex CAN IDs
func parseFilters(filterStr string) []uint32 {
	if filterStr == "" {
		return nil
	}

	parts := strings.Split(filterStr, ",")
	filters := make([]uint32, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var id uint32
		_, err := fmt.Sscanf(part, "%x", &id)
		if err != nil {
			continue
		}

		filters = append(filters, id)
	}

	return filters
}
