package database

import (
	"testing"

	"can-log-analyzer/internal/database/clickhouse"
	"can-log-analyzer/internal/database/influxdb"
)

// Both sinks must stay swappable behind the Writer interface; the sink flag
// in the analyzer selects between them at runtime.
var (
	_ Writer = (*clickhouse.Writer)(nil)
	_ Writer = (*influxdb.Writer)(nil)
)

func TestWriterImplementations(t *testing.T) {
	// Compile-time assertions above are the actual check; this keeps the
	// file a test file.
	var w Writer = (*influxdb.Writer)(nil)
	if w == nil {
		t.Fatal("interface value holding a typed nil should not be nil")
	}
}
