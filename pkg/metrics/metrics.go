// Package metrics owns the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records push pipeline metrics. A nil *Collector is valid and
// records nothing, so callers never need to branch on instrumentation being
// wired.
type Collector struct {
	pushTotal     *prometheus.CounterVec
	pushAttempts  prometheus.Histogram
	pushDuration  prometheus.Histogram
	vendorStatus  *prometheus.CounterVec
	verifyResults *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewriter_push_total",
			Help: "Completed tariff pushes by outcome.",
		}, []string{"outcome"}),
		pushAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratewriter_push_attempts",
			Help:    "Publish attempts consumed per push.",
			Buckets: []float64{1, 2, 3},
		}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ratewriter_push_duration_seconds",
			Help:    "Wall-clock duration of one orchestrated push.",
			Buckets: prometheus.DefBuckets,
		}),
		vendorStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewriter_vendor_http_status_total",
			Help: "Vendor publish responses by HTTP status; 0 means no response.",
		}, []string{"status_code"}),
		verifyResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratewriter_verify_total",
			Help: "Readback verification results.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.pushTotal,
		c.pushAttempts,
		c.pushDuration,
		c.vendorStatus,
		c.verifyResults,
	)

	return c
}

// ObservePush records one completed push.
func (c *Collector) ObservePush(success bool, attempts int, duration time.Duration) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.pushTotal.WithLabelValues(outcome).Inc()
	c.pushAttempts.Observe(float64(attempts))
	c.pushDuration.Observe(duration.Seconds())
}

// ObservePublishAttempt records the status of one vendor publish exchange.
func (c *Collector) ObservePublishAttempt(statusCode int) {
	if c == nil {
		return
	}
	c.vendorStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveVerify records a readback verification result.
func (c *Collector) ObserveVerify(passed bool) {
	if c == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	c.verifyResults.WithLabelValues(result).Inc()
}

// NewRegistry returns a private registry preloaded with the standard Go and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape handler for the given registry.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
