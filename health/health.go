// Package health exposes the /live, /ready, /metrics, and /reload HTTP
// endpoints and enforces admission control against a configured
// active-call ceiling.
package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CallCounter reports the number of currently active calls, satisfied by
// *session.Store.Len.
type CallCounter interface {
	Len() int
}

// ReloadFunc applies a configuration reload and reports whether it
// succeeded; errors are rendered as the /reload response body.
type ReloadFunc func() error

// Server serves the health/admission/metrics endpoints.
type Server struct {
	calls        CallCounter
	maxActive    int64
	reloadToken  string
	reload       ReloadFunc
	registry     *prometheus.Registry

	mu     sync.RWMutex
	ready  bool

	activeCalls    prometheus.Gauge
	admissionDenied prometheus.Counter
	reloadsTotal    *prometheus.CounterVec
}

// Config configures a Server.
type Config struct {
	Calls       CallCounter
	MaxActive   int64
	ReloadToken string
	Reload      ReloadFunc
	Registry    *prometheus.Registry
}

// New builds a Server and registers its metrics against cfg.Registry (a
// fresh prometheus.NewRegistry() if nil).
func New(cfg Config) *Server {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{
		calls:       cfg.Calls,
		maxActive:   cfg.MaxActive,
		reloadToken: cfg.ReloadToken,
		reload:      cfg.Reload,
		registry:    reg,
		ready:       true,
		activeCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "omnivoice_active_calls",
			Help: "Number of calls currently under orchestration.",
		}),
		admissionDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omnivoice_admission_denied_total",
			Help: "Number of inbound calls rejected because the active-call ceiling was reached.",
		}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omnivoice_reloads_total",
			Help: "Number of configuration reload attempts, partitioned by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(s.activeCalls, s.admissionDenied, s.reloadsTotal)
	return s
}

// Admit reports whether a new call may be accepted given the configured
// ceiling, incrementing the denial counter when it does not.
func (s *Server) Admit() bool {
	if s.maxActive <= 0 {
		return true
	}
	if int64(s.calls.Len()) >= s.maxActive {
		s.admissionDenied.Inc()
		return false
	}
	return true
}

// SetReady flips the /ready response, used to drain a process ahead of
// shutdown without failing /live.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// Handler returns the mux serving /live, /ready, /metrics, /reload.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/reload", s.handleReload)
	return mux
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.activeCalls.Set(float64(s.calls.Len()))

	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if !ready {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type reloadResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reloadToken != "" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.reloadToken {
			s.reloadsTotal.WithLabelValues("unauthorized").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if s.reload == nil {
		s.reloadsTotal.WithLabelValues("unconfigured").Inc()
		http.Error(w, "reload not configured", http.StatusNotImplemented)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := s.reload(); err != nil {
		s.reloadsTotal.WithLabelValues("rejected").Inc()
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(reloadResponse{OK: false, Error: err.Error()})
		return
	}
	s.reloadsTotal.WithLabelValues("applied").Inc()
	_ = json.NewEncoder(w).Encode(reloadResponse{OK: true})
}
