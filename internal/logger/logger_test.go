package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("ticket", "reserved 4821")
	l.LogPayment("FETCH", "pay_1", "approved")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "TICKET", entry.Category)
	assert.Equal(t, "reserved 4821", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "PAYMENT", entry.Category)
	assert.Equal(t, "[FETCH] pay_1 - approved", entry.Message)
}

func TestSetLevel_FiltersLowerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.SetLevel(WARN)

	l.Debug("X", "debug")
	l.Info("X", "info")
	l.Warn("X", "warn")

	out := buf.String()
	assert.NotContains(t, out, `"debug"`)
	assert.NotContains(t, out, `"info"`)
	assert.Contains(t, out, `"warn"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel(" ERROR "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Info("X", "y") })
}
