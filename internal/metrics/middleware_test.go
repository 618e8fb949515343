package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/cycles/{cycle_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	notFoundBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))
	patternBefore := testutil.CollectAndCount(httpRequestDurationSeconds)

	for _, target := range []string{"/v1/cycles/a", "/v1/cycles/b", "/v1/status", "/metrics"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.InDelta(t, notFoundBefore+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 1.0)
	// One series per route pattern, never per concrete path.
	assert.LessOrEqual(t, testutil.CollectAndCount(httpRequestDurationSeconds), patternBefore+2)
}

func TestRoutePatternWithoutRouter(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	assert.Equal(t, "unmatched", routePattern(req))
}
