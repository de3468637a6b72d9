package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerWritesModuleAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl, err := NewCentralLoggerWithWriter(&LoggingConfig{Level: "debug"}, &buf)
	require.NoError(t, err)

	log := cl.Module("session").With(String("filename", "leaf.jpg"))
	log.Info("Submission applied", Float64("confidence", 0.98765), Int("records", 3))

	out := buf.String()
	assert.Contains(t, out, "module=session")
	assert.Contains(t, out, "filename=leaf.jpg")
	assert.Contains(t, out, "confidence=0.988")
	assert.Contains(t, out, "records=3")
	assert.NotContains(t, out, "time=", "console output omits timestamps")
}

func TestModuleLevelOverride(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cl, err := NewCentralLoggerWithWriter(&LoggingConfig{
		Level:        "info",
		Console:      &ConsoleOutput{Enabled: true, Level: "trace"},
		ModuleLevels: map[string]string{"remote": "debug"},
	}, &buf)
	require.NoError(t, err)

	cl.Module("history").Debug("hidden")
	cl.Module("remote").Debug("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelTrace)
	log.Trace("deep detail")

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestSubModuleName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo).Module("remote").Module("uploads")
	log.Warn("slow")

	assert.Contains(t, buf.String(), "module=remote.uploads")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo)
	ctx := WithTraceID(t.Context(), "abc-123")

	log.WithContext(ctx).Info("request")
	log.WithContext(t.Context()).Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=abc-123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom", Error(errors.New("boom")).Value)
	assert.Nil(t, Error(nil).Value)
	assert.Equal(t, "error", Error(nil).Key)
}

func TestFileOutputWritesJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "leafscan.log")
	cl, err := NewCentralLoggerWithWriter(&LoggingConfig{
		Level:      "info",
		Timezone:   "UTC",
		Console:    &ConsoleOutput{Enabled: false},
		FileOutput: &FileOutput{Enabled: true, Path: path},
	}, nil)
	require.NoError(t, err)

	cl.Module("history").Info("Refreshed", Int("records", 4), Duration("took", 1500*time.Microsecond))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "Refreshed", entry["msg"])
	assert.Equal(t, "history", entry["module"])
	assert.EqualValues(t, 4, entry["records"])
	assert.Equal(t, "2ms", entry["took"])
	assert.Contains(t, entry, "time")
}

func TestInvalidTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLoggerWithWriter(&LoggingConfig{Timezone: "Not/AZone"}, nil)
	require.Error(t, err)
}

func TestNilConfig(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)
}

func TestParseSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   LogLevel
		want string
	}{
		{LogLevelDebug, "DEBUG"},
		{LogLevelWarn, "WARN"},
		{LogLevelError, "ERROR"},
		{"", "INFO"},
		{"bogus", "INFO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSlogLevel(tt.in).String(), "level %q", tt.in)
	}
}
