package database

import "can-log-analyzer/internal/models"

// Writer defines the interface for frame sinks
type Writer interface {
	// Start begins processing and writing frames
	Start(tableName string)

	// Write queues a frame for writing
	Write(frame models.Frame)

	// Close closes the database connection and cleans up resources
	Close() error
}
