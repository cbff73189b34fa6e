package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// failoverTotal counts product searches served by the SQLite fallback,
// partitioned by reason: "unavailable" (index down or not configured),
// "error" (index query failed), or "empty" (index returned no matches).
var failoverTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "botcore",
	Subsystem: "catalog",
	Name:      "failover_total",
	Help:      "Product searches served by the SQLite fallback instead of the index, by reason.",
}, []string{"reason"})
