// Package telemetry exposes Prometheus metrics for the ward service: HTTP
// traffic, domain event counts and the dashboard gauges.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/donka/ward/internal/platform/events"
)

const namespace = "ward"

// Collector owns every metric the service exports. Each collector has its own
// registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge

	EventsTotal *prometheus.CounterVec

	ActivePatients      prometheus.Gauge
	ActiveComplications prometheus.Gauge
	StockAlerts         prometheus.Gauge
	Balance             prometheus.Gauge

	DBConnections prometheus.Gauge
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "domain",
			Name:      "events_total",
			Help:      "Domain events by type (admissions, complications, stock alerts, ...).",
		}, []string{"type"}),

		ActivePatients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "active_patients",
			Help:      "Patients hospitalized, in the operating room or post-op at the last dashboard refresh.",
		}),

		ActiveComplications: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "active_complications",
			Help:      "Patients with an active complication at the last dashboard refresh.",
		}),

		StockAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "stock_alerts",
			Help:      "Stock items at or below their alert threshold.",
		}),

		Balance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "balance",
			Help:      "Ledger balance (income minus expense).",
		}),

		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "open_connections",
			Help:      "Current number of open database connections.",
		}),
	}
}

// Registry exposes the collector's registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Publish counts a domain event. It lets the collector sit alongside the other
// event publishers.
func (c *Collector) Publish(_ context.Context, evt events.Event) error {
	c.EventsTotal.WithLabelValues(evt.Type).Inc()
	return nil
}

// SetWardGauges records the latest dashboard figures.
func (c *Collector) SetWardGauges(active, complications, stockAlerts int, balance float64) {
	c.ActivePatients.Set(float64(active))
	c.ActiveComplications.Set(float64(complications))
	c.StockAlerts.Set(float64(stockAlerts))
	c.Balance.Set(balance)
}

// SetDBConnections records the pool's open connection count.
func (c *Collector) SetDBConnections(n int32) {
	c.DBConnections.Set(float64(n))
}

// Middleware records request count, latency and in-flight requests, labelled
// by the route pattern rather than the raw path.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ec echo.Context) error {
			c.InFlight.Inc()
			defer c.InFlight.Dec()

			start := time.Now()
			err := next(ec)
			duration := time.Since(start).Seconds()

			route := ec.Path()
			if route == "" {
				route = "unmatched"
			}
			status := ec.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			method := ec.Request().Method
			c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.RequestDuration.WithLabelValues(method, route).Observe(duration)
			return err
		}
	}
}

// Handler serves the Prometheus exposition format.
func (c *Collector) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
}
