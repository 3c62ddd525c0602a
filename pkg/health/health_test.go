package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errors.New("down") }

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		build    func(r *CheckerRegistry)
		want     Status
		wantCode int
	}{
		{"no checkers", func(*CheckerRegistry) {}, StatusHealthy, http.StatusOK},
		{"all healthy", func(r *CheckerRegistry) {
			r.Register(CheckFunc("db", ok))
			r.RegisterOptional(CheckFunc("cache", ok))
		}, StatusHealthy, http.StatusOK},
		{"optional failure degrades", func(r *CheckerRegistry) {
			r.Register(CheckFunc("db", ok))
			r.RegisterOptional(CheckFunc("cache", fail))
		}, StatusDegraded, http.StatusOK},
		{"required failure wins", func(r *CheckerRegistry) {
			r.Register(CheckFunc("db", fail))
			r.RegisterOptional(CheckFunc("cache", fail))
		}, StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			tt.build(r)

			assert.Equal(t, tt.want, r.Check(context.Background()).Status)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, w.Code)

			var body Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestCheck_ReportsMessages(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(CheckFunc("db", fail))

	h := r.Check(context.Background())
	require.Contains(t, h.Checks, "db")
	assert.Equal(t, "down", h.Checks["db"].Message)
	assert.Equal(t, StatusUnhealthy, h.Checks["db"].Status)
}
