package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/Noofbiz/tosdata/config"
)

func TestNewWriter_JSONLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, config.LogConfig{Level: "warn"})
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	log.Info().Msg("dropped")
	log.Warn().Str("bucket", "b").Msg("kept")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one json entry, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "kept" || entry["bucket"] != "b" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewWriter_BadLevel(t *testing.T) {
	if _, err := NewWriter(&bytes.Buffer{}, config.LogConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
