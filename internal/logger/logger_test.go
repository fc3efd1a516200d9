package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"verbose": zerolog.InfoLevel,
	}
	for level, want := range cases {
		var buf bytes.Buffer
		if got := newWithWriter(&buf, "svc", level).GetLevel(); got != want {
			t.Fatalf("level %q: expected %s, got %s", level, want, got)
		}
	}
}

func TestNewFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "rewards-ledger", "info")

	log.Debug().Msg("hidden")
	log.Info().Str("event", "redemption_created").Msg("")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "rewards-ledger" || line["event"] != "redemption_created" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
}
