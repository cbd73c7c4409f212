package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "packserv",
			Subsystem: "inventory",
			Name:      "scans_total",
			Help:      "Total number of package directory scans",
		},
	)
	scanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "packserv",
			Subsystem: "inventory",
			Name:      "scan_duration_seconds",
			Help:      "Duration of package directory scans",
		},
	)
	scannedVersions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "packserv",
			Subsystem: "inventory",
			Name:      "scanned_versions",
			Help:      "Number of package versions attempted in the most recent scan",
		},
	)
	rescanTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "packserv",
			Subsystem: "inventory",
			Name:      "rescan_triggers_total",
			Help:      "Filesystem events that triggered or dropped a rescan",
		},
		[]string{"outcome"},
	)
)
