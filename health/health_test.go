package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct{ n int }

func (f fakeCounter) Len() int { return f.n }

func TestAdmit_UnderCeiling(t *testing.T) {
	s := New(Config{Calls: fakeCounter{n: 3}, MaxActive: 10, Registry: prometheus.NewRegistry()})
	assert.True(t, s.Admit())
}

func TestAdmit_AtCeiling(t *testing.T) {
	s := New(Config{Calls: fakeCounter{n: 10}, MaxActive: 10, Registry: prometheus.NewRegistry()})
	assert.False(t, s.Admit())
}

func TestAdmit_NoCeilingConfigured(t *testing.T) {
	s := New(Config{Calls: fakeCounter{n: 1_000_000}, MaxActive: 0, Registry: prometheus.NewRegistry()})
	assert.True(t, s.Admit())
}

func TestLiveAlwaysOK(t *testing.T) {
	s := New(Config{Calls: fakeCounter{}, Registry: prometheus.NewRegistry()})
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_ReflectsSetReady(t *testing.T) {
	s := New(Config{Calls: fakeCounter{}, Registry: prometheus.NewRegistry()})
	s.SetReady(false)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReload_RequiresBearerToken(t *testing.T) {
	called := false
	s := New(Config{
		Calls:       fakeCounter{},
		ReloadToken: "secret",
		Reload:      func() error { called = true; return nil },
		Registry:    prometheus.NewRegistry(),
	})

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	req2 := httptest.NewRequest(http.MethodPost, "/reload", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.True(t, called)
}

func TestReload_SurfacesConfigError(t *testing.T) {
	s := New(Config{
		Calls:    fakeCounter{},
		Reload:   func() error { return assertErr{} },
		Registry: prometheus.NewRegistry(),
	})

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "config invalid" }
