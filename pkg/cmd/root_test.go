package cmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c9s/qrhawkes/pkg/metrics"
)

func TestMetricsRouter(t *testing.T) {
	metrics.IncEvaluation("loglik", "loss")
	r := metricsRouter()

	tests := []struct {
		name     string
		path     string
		code     int
		contains string
	}{
		{name: "metrics", path: "/metrics", code: http.StatusOK, contains: "qrhawkes_evaluation_total"},
		{name: "go collector", path: "/metrics", code: http.StatusOK, contains: "go_goroutines"},
		{name: "ping", path: "/ping", code: http.StatusOK, contains: "pong"},
		{name: "unknown route", path: "/debug", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}
