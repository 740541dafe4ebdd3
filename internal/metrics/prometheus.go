package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warmpath"

// Metrics groups every collector the service records. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	QueryDuration     prometheus.Histogram
	QueryTotal        *prometheus.CounterVec
	QueryResultsCount prometheus.Histogram
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	ContactsImported  *prometheus.CounterVec
	ContactsSkipped   *prometheus.CounterVec
	GoogleImports     *prometheus.CounterVec
	ContactsDeleted   prometheus.Counter
	ContactsCreated   prometheus.Counter
	SignInsRequested  prometheus.Counter
	SignInsCompleted  *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Network query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		QueryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_total",
			Help:      "Total number of network queries",
		}, []string{"status"}),
		QueryResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results_count",
			Help:      "Number of ranked contacts returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10},
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Total query cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_misses_total",
			Help:      "Total query cache misses",
		}),
		ContactsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_imported_total",
			Help:      "Contacts added by import",
		}, []string{"origin"}),
		ContactsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_skipped_total",
			Help:      "Import rows skipped as duplicates",
		}, []string{"origin"}),
		GoogleImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "google_imports_total",
			Help:      "Google Contacts import callbacks by outcome",
		}, []string{"outcome"}),
		ContactsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_deleted_total",
			Help:      "Contacts deleted by their owner",
		}),
		ContactsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_created_total",
			Help:      "Contacts added by hand",
		}),
		SignInsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_requests_total",
			Help:      "Magic-link sign-in requests",
		}),
		SignInsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signin_completions_total",
			Help:      "Magic-link callbacks by status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.QueryDuration,
		m.QueryTotal,
		m.QueryResultsCount,
		m.CacheHits,
		m.CacheMisses,
		m.ContactsImported,
		m.ContactsSkipped,
		m.GoogleImports,
		m.ContactsDeleted,
		m.ContactsCreated,
		m.SignInsRequested,
		m.SignInsCompleted,
	)
	return m
}

func (m *Metrics) ObserveQuery(status string, seconds float64, results int) {
	if m == nil {
		return
	}
	m.QueryTotal.WithLabelValues(status).Inc()
	m.QueryDuration.Observe(seconds)
	if status == "ok" {
		m.QueryResultsCount.Observe(float64(results))
	}
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) ObserveImport(origin string, added, skipped int) {
	if m == nil {
		return
	}
	m.ContactsImported.WithLabelValues(origin).Add(float64(added))
	m.ContactsSkipped.WithLabelValues(origin).Add(float64(skipped))
}

func (m *Metrics) ObserveGoogleImport(outcome string) {
	if m == nil {
		return
	}
	m.GoogleImports.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveContactCreated() {
	if m == nil {
		return
	}
	m.ContactsCreated.Inc()
}

func (m *Metrics) ObserveContactDeleted() {
	if m == nil {
		return
	}
	m.ContactsDeleted.Inc()
}

func (m *Metrics) ObserveSignInRequest() {
	if m == nil {
		return
	}
	m.SignInsRequested.Inc()
}

func (m *Metrics) ObserveSignInCompletion(status string) {
	if m == nil {
		return
	}
	m.SignInsCompleted.WithLabelValues(status).Inc()
}

// Handler exposes the collectors registered on g.
func Handler(g prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
