package monitoring

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatJSON, false)

	logger.Info().Str("key_alias", "primary").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "primary", entry["key_alias"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_AutoWithoutTerminalIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, FormatAuto, false)
	logger.Info().Msg("x")

	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetupLogging_FileOutput(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	closer, err := SetupLogging(LoggerConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSetupLogging_BadLevel(t *testing.T) {
	_, err := SetupLogging(LoggerConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.ObserveRequest("messages", true, "success", 120*time.Millisecond)
	m.ObserveRequest("messages", true, "success", 80*time.Millisecond)
	m.ObserveRequest("messages", false, "error", time.Second)
	m.AddTokens(10, 5, 0, 3)
	m.AddTokens(1, 0, 0, 0)
	m.EventDropped()
	m.PublishFailed("http")
	m.InFlightInc()
	m.InFlightInc()
	m.InFlightDec()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("messages", "true", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("messages", "false", "error")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.tokens.WithLabelValues("input")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.tokens.WithLabelValues("output")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.tokens.WithLabelValues("cache_read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishFailures.WithLabelValues("http")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveRequest("messages", false, "success", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gateway_requests_total{route="messages",status="success",stream="false"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRequest("messages", true, "success", time.Second)
		m.AddTokens(1, 1, 1, 1)
		m.InFlightInc()
		m.InFlightDec()
		m.EventDropped()
		m.PublishFailed("log")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJSONLWriter_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "usage.jsonl")
	w, err := NewJSONLWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Append(map[string]any{"n": 1, "html": "<b>"}))
	require.NoError(t, w.AppendRaw([]byte(`{"n":2}`)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)
	assert.True(t, strings.Contains(lines[0], `"<b>"`), "html is not escaped")
	assert.Equal(t, `{"n":2}`, lines[1])
}

func TestNewJSONLWriter_EmptyPath(t *testing.T) {
	_, err := NewJSONLWriter("")
	require.Error(t, err)
}
