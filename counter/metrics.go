package counter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var downloads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "packserv",
		Subsystem: "counter",
		Name:      "downloads_total",
		Help:      "Total number of counted package downloads",
	},
	[]string{"package"},
)
