package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dbuelvasc/sonar-europeana-Cloud-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStore struct {
	store.Store
	mock.Mock
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called().Error(0)
}

func serve(t *testing.T, handler http.HandlerFunc) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, status
}

func TestHealthChecker_Liveness(t *testing.T) {
	hc := NewHealthChecker(nil, nil, zap.NewNop())

	code, status := serve(t, hc.LivenessHandler)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", status.Status)
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantStore  string
	}{
		{name: "ready", wantCode: http.StatusOK, wantStatus: "ready", wantStore: "healthy"},
		{name: "store down", pingErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable,
			wantStatus: "not_ready", wantStore: "unhealthy: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockStore{}
			s.On("Ping").Return(tt.pingErr)
			cache := store.NewInMemoryCache(10, zap.NewNop())
			defer cache.Stop()

			hc := NewHealthChecker(s, cache, zap.NewNop())
			code, status := serve(t, hc.ReadinessHandler)

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantStore, status.Checks["store"])
			assert.Equal(t, "healthy", status.Checks["cache"])
			s.AssertExpectations(t)
		})
	}
}
