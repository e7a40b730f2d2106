package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// FaultWriter handles writing detected faults to ClickHouse
type FaultWriter struct {
	conn       driver.Conn
	batchSize  int
	batch      []models.FaultRecord
	batchChan  chan models.FaultRecord
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	log        *zap.SugaredLogger
}

// NewFaultWriter creates a new ClickHouse fault writer sharing an existing
// connection.
func NewFaultWriter(conn driver.Conn, batchSize int, log *zap.SugaredLogger) *FaultWriter {
	ctx, cancel := context.WithCancel(context.Background())

	writer := &FaultWriter{
		conn:       conn,
		batchSize:  batchSize,
		batch:      make([]models.FaultRecord, 0, batchSize),
		batchChan:  make(chan models.FaultRecord, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(5 * time.Second),
		log:        log,
	}

	return writer
}

// CreateFaultTable creates the fault table in ClickHouse
func CreateFaultTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp Float64,
			category String,
			severity String,
			code String,
			description String,
			source String,
			can_id UInt32,
			has_can_id UInt8,
			data Array(UInt8),
			remedy String
		) ENGINE = MergeTree()
		ORDER BY (timestamp, category)
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

// Start begins processing and writing faults
func (w *FaultWriter) Start(tableName string) {
	go w.writeLoop(tableName)
}

// writeLoop processes faults and writes them in batches
func (w *FaultWriter) writeLoop(tableName string) {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining records before exiting
			if len(w.batch) > 0 {
				w.flush(tableName)
			}
			return

		case rec := <-w.batchChan:
			w.batch = append(w.batch, rec)
			if len(w.batch) >= w.batchSize {
				w.flush(tableName)
			}

		case <-w.flushTimer.C:
			if len(w.batch) > 0 {
				w.flush(tableName)
			}
		}
	}
}

// flush writes the current batch to ClickHouse
func (w *FaultWriter) flush(tableName string) error {
	if len(w.batch) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(w.ctx, fmt.Sprintf("INSERT INTO %s", tableName))
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, rec := range w.batch {
		err = batch.Append(
			rec.Timestamp,
			string(rec.Category),
			string(rec.Severity),
			rec.Code,
			rec.Description,
			rec.Source,
			rec.FrameID,
			boolToUInt8(rec.HasFrameID),
			rec.Data,
			rec.Remedy,
		)

		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	err = batch.Send()
	if err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	w.log.Debugw("flushed faults to ClickHouse", "count", len(w.batch))
	w.batch = w.batch[:0]

	return nil
}

// Write queues a fault record for writing
func (w *FaultWriter) Write(rec models.FaultRecord) {
	select {
	case w.batchChan <- rec:
	default:
		w.log.Warnw("fault batch channel full, dropping record", "code", rec.Code)
	}
}

// Close closes the fault writer
func (w *FaultWriter) Close() error {
	w.cancel()
	w.flushTimer.Stop()
	close(w.batchChan)
	return nil
}
