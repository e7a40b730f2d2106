package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// Writer handles writing decoded CAN frames to ClickHouse
type Writer struct {
	conn       driver.Conn
	config     Config
	batchSize  int
	batch      []models.Frame
	batchChan  chan models.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	log        *zap.SugaredLogger
}

// New creates a new ClickHouse writer
func New(config Config, batchSize int, log *zap.SugaredLogger) (*Writer, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ClickHouse")
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to ping ClickHouse")
	}

	if err := createFrameTable(conn, config.Table); err != nil {
		return nil, errors.Wrap(err, "failed to create frame table")
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		conn:       conn,
		config:     config,
		batchSize:  batchSize,
		batch:      make([]models.Frame, 0, batchSize),
		batchChan:  make(chan models.Frame, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(1 * time.Second),
		log:        log,
	}

	return writer, nil
}

// createFrameTable creates the CAN frame table in ClickHouse
func createFrameTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp Float64,
			channel String,
			can_id UInt32,
			extended UInt8,
			is_error UInt8,
			dlc UInt8,
			data Array(UInt8)
		) ENGINE = MergeTree()
		ORDER BY (timestamp, can_id)
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

// Start begins processing and writing frames
func (w *Writer) Start(tableName string) {
	go w.writeLoop(tableName)
}

// writeLoop processes frames and writes them in batches
func (w *Writer) writeLoop(tableName string) {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining frames before exiting
			if len(w.batch) > 0 {
				w.flush(tableName)
			}
			return

		case frame := <-w.batchChan:
			w.batch = append(w.batch, frame)
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
func (w *Writer) flush(tableName string) error {
	if len(w.batch) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(w.ctx, fmt.Sprintf("INSERT INTO %s", tableName))
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, f := range w.batch {
		err = batch.Append(
			f.Timestamp,
			f.Channel,
			f.ID,
			boolToUInt8(f.Extended),
			boolToUInt8(f.Error),
			f.DLC,
			f.Data,
		)

		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	err = batch.Send()
	if err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	w.log.Debugw("flushed frames to ClickHouse", "count", len(w.batch))
	w.batch = w.batch[:0]

	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Write queues a frame for writing
func (w *Writer) Write(frame models.Frame) {
	select {
	case w.batchChan <- frame:
	default:
		w.log.Warnw("batch channel full, dropping frame", "can_id", frame.ID)
	}
}

// Close closes the ClickHouse connection
func (w *Writer) Close() error {
	w.cancel()
	w.flushTimer.Stop()
	close(w.batchChan)

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// GetConn returns the underlying ClickHouse connection
func (w *Writer) GetConn() driver.Conn {
	return w.conn
}

// ExportOptions contains options for exporting frame data
type ExportOptions struct {
	Start       float64
	End         float64
	OutputPath  string
	Compression string // snappy, lz4, brotli, zstd, gzip, none - default: zstd
}

// ExportToParquet exports a time slice of frames to a Parquet file
func (w *Writer) ExportToParquet(tableName string, opts ExportOptions) error {
	if opts.Compression == "" {
		opts.Compression = "zstd"
	}

	dir := filepath.Dir(opts.OutputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	query := fmt.Sprintf(`
		SELECT
			timestamp,
			channel,
			can_id,
			extended,
			is_error,
			dlc,
			data
		FROM %s
		WHERE timestamp >= %f AND timestamp < %f
		ORDER BY timestamp
		INTO OUTFILE '%s'
		FORMAT Parquet
		SETTINGS output_format_parquet_compression_method='%s'
	`,
		tableName,
		opts.Start,
		opts.End,
		opts.OutputPath,
		opts.Compression,
	)

	if err := w.conn.Exec(context.Background(), query); err != nil {
		return errors.Wrap(err, "failed to export to Parquet")
	}

	w.log.Infow("exported frames to Parquet", "path", opts.OutputPath)
	return nil
}
