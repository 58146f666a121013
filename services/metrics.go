package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var imagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "importer",
		Name:      "images_total",
		Help:      "Images handled by the migration pipeline",
	},
	[]string{"status"},
)
