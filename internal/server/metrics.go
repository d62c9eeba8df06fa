package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
)

// Metrics records fetch cycles on a private registry. It satisfies the
// coordinator's Observer.
type Metrics struct {
	registry       *prometheus.Registry
	scrapeRequests prometheus.Counter
	scrapeFailures prometheus.Counter
	scrapeDuration prometheus.Histogram
	lastScrapeTime *prometheus.GaugeVec
	appointments   *prometheus.GaugeVec
	authentication *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		scrapeRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfoweb_scrapes_total",
			Help: "Number of fetch cycles against the SFO portal",
		}),
		scrapeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sfoweb_scrape_failures_total",
			Help: "Number of fetch cycles that failed",
		}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfoweb_scrape_duration_seconds",
			Help:    "Time taken to log in and extract appointments",
			Buckets: prometheus.DefBuckets,
		}),
		lastScrapeTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfoweb_last_scrape_timestamp_seconds",
			Help: "Unix timestamp of the last successful fetch cycle",
		}, []string{"account"}),
		appointments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfoweb_appointments",
			Help: "Appointments returned by the last successful fetch cycle",
		}, []string{"account"}),
		authentication: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfoweb_authentications_total",
			Help: "Successful logins by strategy and deciding signal",
		}, []string{"strategy", "signal"}),
	}

	reg.MustRegister(
		m.scrapeRequests,
		m.scrapeFailures,
		m.scrapeDuration,
		m.lastScrapeTime,
		m.appointments,
		m.authentication,
	)

	return m
}

// ObserveFetch records one finished cycle.
func (m *Metrics) ObserveFetch(account string, out scraper.Outcome, err error, took time.Duration) {
	m.scrapeRequests.Inc()
	m.scrapeDuration.Observe(took.Seconds())
	if out.Strategy != "" {
		m.authentication.WithLabelValues(out.Strategy, string(out.Signal)).Inc()
	}
	if err != nil {
		m.scrapeFailures.Inc()
		return
	}
	m.appointments.WithLabelValues(account).Set(float64(len(out.Appointments)))
	m.lastScrapeTime.WithLabelValues(account).SetToCurrentTime()
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
