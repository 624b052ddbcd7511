package transform

import "github.com/prometheus/client_golang/prometheus"

var (
	// NodesCreated counts nodes added to any context, by kind.
	NodesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gfs_transform_nodes_total",
			Help: "Total number of transformation nodes created",
		},
		[]string{"kind"},
	)

	Finalized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gfs_transform_finalized_total",
			Help: "Total number of transformations finalized",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesCreated)
	prometheus.MustRegister(Finalized)
}
