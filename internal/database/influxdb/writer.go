package influxdb

import (
	"context"
	"fmt"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"can-log-analyzer/internal/models"
)

// Writer handles writing CAN frames to InfluxDB
type Writer struct {
	client     *influxdb3.Client
	batchSize  int
	batch      []models.Frame
	batchChan  chan models.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	database   string
	log        *zap.SugaredLogger
}

// New creates a new InfluxDB writer
func New(config Config, batchSize int, log *zap.SugaredLogger) (*Writer, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     config.URL,
		Token:    config.Token,
		Database: config.Bucket,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create InfluxDB client")
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		client:     client,
		batchSize:  batchSize,
		batch:      make([]models.Frame, 0, batchSize),
		batchChan:  make(chan models.Frame, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(1 * time.Second),
		database:   config.Bucket,
		log:        log,
	}

	return writer, nil
}

// Start begins processing and writing frames
func (w *Writer) Start(tableName string) {
	go w.writeLoop()
}

// writeLoop processes frames and writes them in batches
func (w *Writer) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining frames before exiting
			if len(w.batch) > 0 {
				w.flush()
			}
			return

		case frame := <-w.batchChan:
			w.batch = append(w.batch, frame)
			if len(w.batch) >= w.batchSize {
				w.flush()
			}

		case <-w.flushTimer.C:
			if len(w.batch) > 0 {
				w.flush()
			}
		}
	}
}

// flush writes the current batch to InfluxDB
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	points := make([]*influxdb3.Point, 0, len(w.batch))

	for _, f := range w.batch {
		fields := map[string]any{
			"can_id_decimal": f.ID,
			"dlc":            f.DLC,
			"extended":       f.Extended,
			"is_error":       f.Error,
		}
		for i, b := range f.Data {
			fields[fmt.Sprintf("data_%d", i)] = b
		}

		sec := int64(f.Timestamp)
		nsec := int64((f.Timestamp - float64(sec)) * 1e9)
		point := influxdb3.NewPoint(
			"can_frames",
			map[string]string{
				"channel": f.Channel,
				"can_id":  fmt.Sprintf("0x%X", f.ID),
			},
			fields,
			time.Unix(sec, nsec),
		)
		points = append(points, point)
	}

	err := w.client.WritePoints(w.ctx, points)
	if err != nil {
		return errors.Wrap(err, "failed to write points")
	}

	w.log.Debugw("flushed frames to InfluxDB", "count", len(w.batch))
	w.batch = w.batch[:0]

	return nil
}

// Write queues a frame for writing
func (w *Writer) Write(frame models.Frame) {
	select {
	case w.batchChan <- frame:
	default:
		w.log.Warnw("batch channel full, dropping frame", "can_id", frame.ID)
	}
}

// Close closes the InfluxDB connection
func (w *Writer) Close() error {
	w.cancel()
	w.flushTimer.Stop()
	close(w.batchChan)

	// Flush any remaining data
	if len(w.batch) > 0 {
		w.flush()
	}

	if w.client != nil {
		w.client.Close()
	}
	return nil
}
