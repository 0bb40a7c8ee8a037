package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Info("event created")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "event created", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"event_id": 42,
		"stage":    "confirmed",
	}).Info("stage change")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, float64(42), entry["event_id"])
	assert.Equal(t, "confirmed", entry["stage"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Error("operation failed")

	entry := parseLogLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])

	// nil error adds nothing
	buf.Reset()
	logger.WithError(nil).Info("fine")
	entry = parseLogLine(t, &buf)
	_, present := entry["error"]
	assert.False(t, present)
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Info("suppressed")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARN"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("error"))
	assert.Equal(t, InfoLevel, ParseLogLevel(""))
	assert.Equal(t, InfoLevel, ParseLogLevel("verbose"))
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	GetLogger(ctx).Info("from context")
	assert.Contains(t, buf.String(), "from context")

	// missing logger falls back to a default rather than nil
	assert.NotNil(t, GetLogger(context.Background()))
}
