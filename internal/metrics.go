package internal

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mi_uploads_total",
		Help: "The total number of files successfully ingested.",
	},
		[]string{"type"},
	)
	UploadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mi_upload_errors_total",
		Help: "The total number of failed ingests, by error class.",
	},
		[]string{"kind"}, // validation, processing, storage
	)
	UploadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mi_uploaded_bytes_total",
		Help: "The total number of original bytes accepted.",
	})
	VariantEncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mi_variant_encode_duration_seconds",
		Help: "The duration of a single variant resize+encode.",
		Buckets: []float64{
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
		},
	},
		[]string{"variant"},
	)
	StorageOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "mi_storage_op_duration_seconds",
		Help: "The duration of storage backend operations.",
		Buckets: []float64{
			0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10,
		},
	},
		[]string{"op"},
	)
	DeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mi_deletes_total",
		Help: "The total number of media records fully deleted from storage.",
	})
	DeleteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mi_delete_errors_total",
		Help: "The total number of delete attempts that left the record in place.",
	})
	Http400Errors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mi_400_errors",
		Help: "The total number of HTTP 4xx client errors.",
	})
	Http500Errors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mi_500_errors",
		Help: "The total number of HTTP 5xx server errors.",
	})
	MemoryUsage = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mi_memory_usage_bytes",
		Help: "The current memory usage.",
	},
		func() float64 {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return float64(m.Alloc)
		},
	)
)
