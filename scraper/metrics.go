package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage labels used by the collectors.
const (
	StageAuthors  = "authors"
	StageBookURLs = "book_urls"
	StageDetails  = "details"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesTotal        *prometheus.CounterVec
	AttemptsTotal     *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ItemsScrapedTotal *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	SessionDuration   prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total page navigations by stage.",
		},
		[]string{"stage"},
	)
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_attempts_total",
			Help: "Total scrape attempts by stage.",
		},
		[]string{"stage"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of detail retry attempts scheduled.",
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of records extracted by stage.",
		},
		[]string{"stage"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_session_duration_seconds",
			Help:    "Lifetime of browser sessions.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	registry.MustRegister(pages, attempts, retries, items, errorsTotal, sessionDuration)

	return &Metrics{
		Registry:          registry,
		PagesTotal:        pages,
		AttemptsTotal:     attempts,
		RetriesTotal:      retries,
		ItemsScrapedTotal: items,
		ErrorsTotal:       errorsTotal,
		SessionDuration:   sessionDuration,
	}
}

// IncPage increments the page navigation counter.
func (m *Metrics) IncPage(stage string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(stage).Inc()
}

// IncAttempt increments the attempt counter.
func (m *Metrics) IncAttempt(stage string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(stage).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// AddItems adds n extracted records for a stage.
func (m *Metrics) AddItems(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.WithLabelValues(stage).Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveSession records how long a session stayed open.
func (m *Metrics) ObserveSession(d time.Duration) {
	if m == nil {
		return
	}
	m.SessionDuration.Observe(d.Seconds())
}
