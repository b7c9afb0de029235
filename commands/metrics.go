package commands

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chunkgate"

var metricLabelNames = []string{"site", "method", "operation", "status"}

type httpMetrics struct {
	requestDurations *prometheus.SummaryVec
	responseBytes    *prometheus.CounterVec
}

func newHttpMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requestDurations: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  metricsNamespace,
				Name:       "request_duration_seconds",
				Help:       "Time spent answering gateway requests.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			metricLabelNames,
		),
		responseBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "response_bytes_total",
				Help:      "Total volume of response payloads in bytes.",
			},
			metricLabelNames,
		),
	}
	reg.MustRegister(m.requestDurations, m.responseBytes)
	return m
}

func (m *httpMetrics) observe(site string, method string, op string, status int, d time.Duration, size int) {
	labels := prometheus.Labels{
		"site":      site,
		"method":    strings.ToLower(method),
		"operation": op,
		"status":    strconv.Itoa(status),
	}
	m.requestDurations.With(labels).Observe(d.Seconds())
	m.responseBytes.With(labels).Add(float64(size))
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
