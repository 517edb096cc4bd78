package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker(0)
	c.Register("ok", PingCheck(func(context.Context) error { return nil }))
	c.Register("index", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "building 1/3"}
	})

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["ok"].Status)
	assert.NotEmpty(t, report.Components["ok"].Latency)

	c.Register("store", PingCheck(func(context.Context) error { return errors.New("connection refused") }))
	report = c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "connection refused", report.Components["store"].Message)
	assert.Len(t, report.Components, 3)
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker(10 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	c.Register("store", func(ctx context.Context) ComponentHealth {
		<-release
		return ComponentHealth{Status: StatusUp}
	})

	start := time.Now()
	report := c.Run(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "operation timed out", report.Components["store"].Message)
}

func TestHandlers(t *testing.T) {
	c := NewChecker(0)
	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var live map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Equal(t, "alive", live["status"])
	assert.NotEmpty(t, live["uptime"])

	c.Register("index", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded, Message: "no manifest loaded"}
	})
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "no manifest loaded", report.Components["index"].Message)

	c.Register("index", func(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
