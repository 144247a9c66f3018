package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldsPairsAndSkipsBadKeys(t *testing.T) {
	f := fields("id", "abc", 42, "ignored", "count", 3, "dangling")

	assert.Equal(t, "abc", f["id"])
	assert.Equal(t, 3, f["count"])
	assert.Len(t, f, 2)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" WARN ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "ParseLevel(%q)", tt.in)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelError)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
		SetOutput(os.Stderr)
	})

	Info("hidden line")
	Error("feed failed", errors.New("boom"), "url", "https://example.com")

	out := buf.String()
	assert.NotContains(t, out, "hidden line")
	assert.Contains(t, out, "feed failed")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "url=")
}
