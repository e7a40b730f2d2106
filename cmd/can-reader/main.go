package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"can-log-analyzer/internal/can"
	"can-log-analyzer/internal/config"
	"can-log-analyzer/internal/database/clickhouse"
	"can-log-analyzer/internal/faults"
	"can-log-analyzer/internal/models"
)

func main() {
	envFile := flag.String("env", ".env", "Path to .env configuration file")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	log := logger.Sugar()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	log.Infow("starting live CAN capture",
		"interface", cfg.CANInterface,
		"clickhouse", cfg.ClickHouseHost,
		"table", cfg.ClickHouseTable)

	canReader, err := can.NewReader(cfg.CANInterface)
	if err != nil {
		log.Fatalw("failed to create CAN reader", "error", err)
	}
	defer canReader.Close()

	if len(cfg.CANFilters) > 0 {
		if err := canReader.SetFilter(cfg.CANFilters); err != nil {
			log.Warnw("failed to set filters", "error", err)
		} else {
			log.Infow("applied CAN ID filters", "filters", cfg.CANFilters)
		}
	}

	chConfig := clickhouse.Config{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Table:    cfg.ClickHouseTable,
	}

	chWriter, err := clickhouse.New(chConfig, cfg.BatchSize, log)
	if err != nil {
		log.Fatalw("failed to create ClickHouse writer", "error", err)
	}
	defer chWriter.Close()

	if err := clickhouse.CreateFaultTable(chWriter.GetConn(), cfg.ClickHouseFaultTable); err != nil {
		log.Fatalw("failed to create fault table", "error", err)
	}

	faultWriter := clickhouse.NewFaultWriter(chWriter.GetConn(), cfg.BatchSize/10, log)
	defer faultWriter.Close()

	monitor := can.NewMonitor(cfg.CANInterface, time.Duration(cfg.StatsInterval)*time.Second, log)
	monitor.Start()
	defer monitor.Stop()

	detector := faults.New(log,
		faults.WithGapThreshold(cfg.GapThresholdMS),
		faults.WithCycleTimeFactor(cfg.CycleTimeFactor))

	canReader.Start()
	chWriter.Start(cfg.ClickHouseTable)
	faultWriter.Start(cfg.ClickHouseFaultTable)

	log.Info("capture started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var frameCount uint64
	var errorCount uint64

	// Frame processing loop: persist every frame, run the frame-level fault
	// rules over a sliding window.
	go func() {
		window := make([]models.Frame, 0, 256)
		for {
			select {
			case frame := <-canReader.Frames():
				frameCount++
				chWriter.Write(frame)

				window = append(window, frame)
				if len(window) == cap(window) {
					for _, rec := range detector.Detect(window, nil) {
						faultWriter.Write(rec)
					}
					// Keep the last frame so gaps spanning windows are seen.
					window = append(window[:0], window[len(window)-1])
				}

				if frameCount%1000 == 0 {
					log.Infow("capture progress", "frames", frameCount, "errors", errorCount)
				}

			case err := <-canReader.Errors():
				errorCount++
				log.Errorw("CAN read error", "error", err)
			}
		}
	}()

	// Health loop: record controller-level bus-off events as faults.
	go func() {
		var lastBusOff uint64
		for health := range monitor.Health() {
			if health.BusOff > lastBusOff {
				faultWriter.Write(models.FaultRecord{
					Timestamp:   float64(health.Timestamp.UnixNano()) / 1e9,
					Category:    models.FaultBusTimingGap,
					Severity:    models.SeverityCritical,
					Code:        "E_BUS_OFF",
					Description: "Controller reported bus-off",
					Source:      health.Interface,
				})
				lastBusOff = health.BusOff
			}
		}
	}()

	<-sigChan
	log.Infow("shutting down", "frames", frameCount, "errors", errorCount)
}
