// Package metrics exports object fetch statistics to prometheus and serves
// them over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Noofbiz/tosdata/datasets"
	"github.com/Noofbiz/tosdata/objstore"
)

const namespace = "tosdata"

// Result label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

// Fetch records object fetches. It implements datasets.FetchObserver and is
// safe for concurrent use.
type Fetch struct {
	requests *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ datasets.FetchObserver = (*Fetch)(nil)

// NewFetch creates the fetch collectors and registers them with reg.
func NewFetch(reg prometheus.Registerer) (*Fetch, error) {
	f := &Fetch{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Object fetches by bucket and result.",
		}, []string{"bucket", "result"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Payload bytes fetched by bucket.",
		}, []string{"bucket"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to fetch one object, including client creation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"bucket"}),
	}
	for _, c := range []prometheus.Collector{f.requests, f.bytes, f.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Fetch) ObserveFetch(bucket string, size int, elapsed time.Duration, err error) {
	f.requests.WithLabelValues(bucket, result(err)).Inc()
	f.duration.WithLabelValues(bucket).Observe(elapsed.Seconds())
	if err == nil {
		f.bytes.WithLabelValues(bucket).Add(float64(size))
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case objstore.IsNotFound(err):
		return ResultNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	}
	return ResultError
}

// Handler serves /metrics from g and a /livez probe.
func Handler(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}
