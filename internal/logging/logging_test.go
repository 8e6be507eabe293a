package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWritesTaggedJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{ServiceName: "serendib", Environment: "test", Level: "WARN", Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "username", "kasun")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "kept" || record["service"] != "serendib" || record["env"] != "test" || record["username"] != "kasun" {
		t.Fatalf("unexpected record %v", record)
	}
}
