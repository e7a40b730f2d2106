package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"can-log-analyzer/internal/config"
	"can-log-analyzer/internal/database"
	"can-log-analyzer/internal/database/clickhouse"
	"can-log-analyzer/internal/database/influxdb"
	"can-log-analyzer/internal/dbc"
	"can-log-analyzer/internal/detect"
	"can-log-analyzer/internal/faults"
	"can-log-analyzer/internal/models"
	"can-log-analyzer/internal/parse"
)

func main() {
	var (
		filePath  = flag.String("file", "", "Path to the CAN log file to analyze")
		dbcPath   = flag.String("dbc", "", "Optional DBC file for signal decoding")
		envFile   = flag.String("env", ".env", "Path to .env configuration file")
		decode    = flag.Bool("decode", false, "Decode signals for every frame (requires -dbc)")
		store     = flag.Bool("store", false, "Persist frames and faults to the configured sink")
		sink      = flag.String("sink", "clickhouse", "Persistence backend: clickhouse or influxdb")
		idFilter  = flag.String("ids", "", "Comma-separated hex CAN IDs to keep")
		startTime = flag.Float64("start", 0, "Keep frames at or after this timestamp")
		endTime   = flag.Float64("end", 0, "Keep frames at or before this timestamp")
	)
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: can-analyzer -file <log> [-dbc <database>] [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	registry := parse.NewRegistry(log)
	detector := detect.New(registry, log)

	result, err := detector.Detect(*filePath)
	if err != nil {
		log.Fatalw("failed to detect format", "path", *filePath, "error", err)
	}
	fmt.Printf("Format: %s (%s)\n", result.Format, result.Confidence)

	parser := detector.Parser(result)

	var db *dbc.Database
	if *dbcPath != "" {
		db, err = dbc.Load(*dbcPath, log)
		if err != nil {
			log.Fatalw("failed to load DBC", "path", *dbcPath, "error", err)
		}
		s := db.Statistics()
		fmt.Printf("DBC: %d messages, %d signals, %d nodes\n", s.Messages, s.Signals, s.Nodes)
		for _, w := range db.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}

	criteria := models.FilterCriteria{
		IDs:   parseIDList(*idFilter),
		Start: *startTime,
		End:   *endTime,
	}

	var frames []models.Frame
	for chunk, err := range parser.Parse(*filePath, cfg.ChunkSize) {
		if err != nil {
			log.Fatalw("failed to parse log", "path", *filePath, "error", err)
		}
		frames = append(frames, models.FilterFrames(chunk, criteria)...)
	}

	stats, err := parser.Stats(*filePath)
	if err != nil {
		log.Fatalw("failed to compute stats", "path", *filePath, "error", err)
	}
	printStats(stats)

	if *decode && db != nil {
		printDecoded(frames, db)
	}

	faultDetector := faults.New(log,
		faults.WithGapThreshold(cfg.GapThresholdMS),
		faults.WithCycleTimeFactor(cfg.CycleTimeFactor))
	records := faultDetector.Detect(frames, db)
	printFaults(records)

	if *store {
		persist(cfg, *sink, frames, records, log)
	}
}

func parseIDList(s string) []uint32 {
	if s == "" {
		return nil
	}
	var ids []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(part, "0x"))
		if part == "" {
			continue
		}
		var id uint32
		if _, err := fmt.Sscanf(part, "%x", &id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func printStats(s models.FileStats) {
	fmt.Printf("\nMessages: %d (skipped lines: %d)\n", s.TotalMessages, s.SkippedLines)
	fmt.Printf("Unique IDs: %d (standard %d, extended %d)\n", s.UniqueIDs, s.StandardIDs, s.ExtendedIDs)
	fmt.Printf("Error frames: %d\n", s.ErrorFrames)
	if s.TimeRange.Duration() > 0 {
		fmt.Printf("Time range: %.6f .. %.6f (%.3fs, %.1f msg/s)\n",
			s.TimeRange.Start, s.TimeRange.End, s.TimeRange.Duration(), s.MessageRate)
	}
	if len(s.Channels) > 0 {
		fmt.Printf("Channels: %s\n", strings.Join(s.Channels, ", "))
	}
	if len(s.TopIDs) > 0 {
		fmt.Println("Top IDs:")
		for _, ic := range s.TopIDs {
			fmt.Printf("  0x%X: %d\n", ic.ID, ic.Count)
		}
	}
	if s.Note != "" {
		fmt.Printf("Note: %s\n", s.Note)
	}
}

func printDecoded(frames []models.Frame, db *dbc.Database) {
	fmt.Println("\nDecoded signals:")
	for _, f := range frames {
		msg, ok := db.Message(f.ID)
		if !ok {
			continue
		}
		decoded := dbc.DecodeFrame(f, msg)
		parts := make([]string, 0, len(decoded))
		for _, name := range msg.SignalOrder {
			d := decoded[name]
			if d.Insufficient {
				parts = append(parts, fmt.Sprintf("%s=? (short payload)", name))
				continue
			}
			p := fmt.Sprintf("%s=%g%s", name, d.Value, d.Unit)
			if d.Label != "" {
				p += fmt.Sprintf(" (%s)", d.Label)
			}
			parts = append(parts, p)
		}
		fmt.Printf("  (%.6f) %s: %s\n", f.Timestamp, msg.Name, strings.Join(parts, ", "))
	}
}

func printFaults(records []models.FaultRecord) {
	if len(records) == 0 {
		fmt.Println("\nNo faults detected.")
		return
	}

	summary := faults.Summary(records)
	fmt.Printf("\nFaults: %d\n", summary.Total)

	for _, sev := range []models.Severity{
		models.SeverityCritical, models.SeverityHigh,
		models.SeverityMedium, models.SeverityLow,
	} {
		if n := summary.BySeverity[sev]; n > 0 {
			fmt.Printf("  %s: %d\n", sev, n)
		}
	}

	categories := make([]string, 0, len(summary.ByCategory))
	for c := range summary.ByCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("  %s: %d\n", c, summary.ByCategory[models.FaultCategory(c)])
	}

	fmt.Println()
	for _, r := range records {
		fmt.Printf("[%s] %.6f %s %s: %s\n", r.Severity, r.Timestamp, r.Category, r.Code, r.Description)
		fmt.Printf("    remedy: %s\n", r.Remedy)
	}
}

func persist(cfg *config.Config, sink string, frames []models.Frame, records []models.FaultRecord, log *zap.SugaredLogger) {
	var frameWriter database.Writer
	var faultWriter *clickhouse.FaultWriter
	tableName := cfg.ClickHouseTable

	switch sink {
	case "influxdb":
		w, err := influxdb.New(influxdb.Config{
			URL:    cfg.InfluxDBURL,
			Token:  cfg.InfluxDBToken,
			Org:    cfg.InfluxDBOrg,
			Bucket: cfg.InfluxDBBucket,
		}, cfg.BatchSize, log)
		if err != nil {
			log.Fatalw("failed to create InfluxDB writer", "error", err)
		}
		frameWriter = w
		tableName = cfg.InfluxDBBucket
		log.Infow("fault persistence is ClickHouse-only, writing frames only", "sink", sink)

	case "clickhouse":
		chConfig := clickhouse.Config{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Table:    cfg.ClickHouseTable,
		}
		w, err := clickhouse.New(chConfig, cfg.BatchSize, log)
		if err != nil {
			log.Fatalw("failed to create ClickHouse writer", "error", err)
		}
		frameWriter = w

		if err := clickhouse.CreateFaultTable(w.GetConn(), cfg.ClickHouseFaultTable); err != nil {
			log.Fatalw("failed to create fault table", "error", err)
		}
		faultWriter = clickhouse.NewFaultWriter(w.GetConn(), cfg.BatchSize/10, log)

	default:
		log.Fatalw("unknown sink", "sink", sink)
	}
	defer frameWriter.Close()

	frameWriter.Start(tableName)
	for _, f := range frames {
		frameWriter.Write(f)
	}

	if faultWriter != nil {
		defer faultWriter.Close()
		faultWriter.Start(cfg.ClickHouseFaultTable)
		for _, r := range records {
			faultWriter.Write(r)
		}
	}
	log.Infow("persisted analysis", "sink", sink, "frames", len(frames), "faults", len(records))
}
