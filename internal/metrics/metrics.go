package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors shared by the services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Collaboration metrics
	InvitationTransitions *prometheus.CounterVec
	PermissionDenials     *prometheus.CounterVec

	// Catalog cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Realtime metrics
	WebsocketClients prometheus.Gauge
	MessagesRouted   *prometheus.CounterVec
}

// New creates and registers all collectors on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicroom_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		InvitationTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_invitation_transitions_total",
				Help: "Invitation state machine transitions",
			},
			[]string{"entity", "transition"},
		),
		PermissionDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_permission_denials_total",
				Help: "Actions rejected by the permission evaluator",
			},
			[]string{"entity", "action"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_catalog_cache_lookups_total",
				Help: "Catalog cache lookups by layer and result",
			},
			[]string{"layer", "result"},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "musicroom_websocket_clients",
				Help: "Connected websocket clients",
			},
		),
		MessagesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_realtime_messages_total",
				Help: "Realtime messages routed to clients",
			},
			[]string{"scope"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InvitationTransitions,
		m.PermissionDenials,
		m.CacheLookupsTotal,
		m.WebsocketClients,
		m.MessagesRouted,
	)
	return m
}

// Transition counts one invitation state change ("invited", "accepted",
// "declined") on entity ("event" or "playlist").
func (m *Metrics) Transition(entity, transition string) {
	if m == nil {
		return
	}
	m.InvitationTransitions.WithLabelValues(entity, transition).Inc()
}

func (m *Metrics) Denied(entity, action string) {
	if m == nil {
		return
	}
	m.PermissionDenials.WithLabelValues(entity, action).Inc()
}

func (m *Metrics) CacheLookup(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.WebsocketClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.WebsocketClients.Dec()
	}
}

func (m *Metrics) Routed(scope string) {
	if m != nil {
		m.MessagesRouted.WithLabelValues(scope).Inc()
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware instruments requests. Routes are labelled with the chi
// pattern rather than the raw path to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
