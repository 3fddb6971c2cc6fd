package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	activeSessions prometheus.GaugeFunc
}

// NewMetrics registers the service collectors. sessionCount feeds the live
// session gauge.
func NewMetrics(reg prometheus.Registerer, sessionCount func() int) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyseek",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keyseek",
			Name:      "search_duration_seconds",
			Help:      "Latency of search and refine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	m.activeSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "keyseek",
		Name:      "active_sessions",
		Help:      "Session machines live in this process.",
	}, func() float64 { return float64(sessionCount()) })

	if reg != nil {
		reg.MustRegister(m.requests, m.searchDuration, m.activeSessions)
	}
	return m
}

func (m *Metrics) ObserveSearch(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.searchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.requests.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).Inc()
			return err
		}
	}
}
