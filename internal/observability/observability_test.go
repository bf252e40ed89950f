package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty"))
}

func TestNewLoggerAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, closeFn, err := NewLogger(path, "info")
	require.NoError(t, err)
	logger.Info().Str("address", "COM10").Msg("printer connected")
	logger.Debug().Msg("filtered out")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"address":"COM10"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestMetricsRecorders(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(printJobs.WithLabelValues("label", "ok"))
	RecordPrintJob("label", 42, "")
	assert.Equal(t, before+1, testutil.ToFloat64(printJobs.WithLabelValues("label", "ok")))

	RecordPrintJob("receipt", 0, "not_connected")
	assert.GreaterOrEqual(t, testutil.ToFloat64(printErrors.WithLabelValues("not_connected")), 1.0)

	SetPrinterConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(printerConnected))
	SetPrinterConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(printerConnected))

	RecordHTTPRequest("GET", "/ping", 200, 3*time.Millisecond)
}
