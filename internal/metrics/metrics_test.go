package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandler_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	Handler(func() error { return errors.New("db down") }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_ExposesCounters(t *testing.T) {
	StoreWrites.WithLabelValues("backup", "messages", Result(nil)).Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(StoreWrites.WithLabelValues("backup", "messages", "ok")), 1.0)

	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "statsbot_store_writes_total")
}

func TestStart_EmptyListenDisabled(t *testing.T) {
	s := Start("", nil)
	assert.Nil(t, s)
	assert.NoError(t, s.Stop(context.Background()))
}
