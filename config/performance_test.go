package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func requestLog(t *testing.T, target string) map[string]any {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(PerformanceLogger(logger))
	r.GET("/api/customers/:address", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &line))
	return line
}

func TestPerformanceLoggerUsesRoutePattern(t *testing.T) {
	line := requestLog(t, "/api/customers/0xabc")
	require.Equal(t, "/api/customers/:address", line["path"])
	require.EqualValues(t, http.StatusOK, line["status"])
}

func TestPerformanceLoggerFallsBackToURLPath(t *testing.T) {
	line := requestLog(t, "/nowhere/at/all")
	require.Equal(t, "/nowhere/at/all", line["path"])
	require.EqualValues(t, http.StatusNotFound, line["status"])
}
