package registry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/gfs/pkg/store"
)

var (
	// OperationsTotal counts registry calls by operation and outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gfs_registry_operations_total",
			Help: "Total number of registry operations",
		},
		[]string{"op", "result"},
	)

	// OperationDuration tracks backend round-trip latency per operation.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gfs_registry_operation_duration_seconds",
			Help:    "Latency of registry operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// ResourcesRegistered counts successful writes by resource kind.
	ResourcesRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gfs_registry_resources_registered_total",
			Help: "Total number of resources written, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(ResourcesRegistered)
}

func observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, store.ErrBackend):
		return "backend_error"
	default:
		return "error"
	}
}
