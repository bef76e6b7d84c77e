// Package vectorstore provides Prometheus metrics for store operations.
package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsAdded counts documents written per backend and collection.
	DocumentsAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ideabank",
			Subsystem: "vectorstore",
			Name:      "documents_added_total",
			Help:      "Total number of documents upserted into the vector store",
		},
		[]string{"backend", "collection"},
	)

	// SearchesTotal counts similarity searches.
	// Labels: backend (chromem, qdrant), result (success, error)
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ideabank",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of similarity search operations",
		},
		[]string{"backend", "result"},
	)
)

// RecordDocumentsAdded records an upsert batch.
func RecordDocumentsAdded(backend, collection string, count int) {
	DocumentsAdded.WithLabelValues(backend, collection).Add(float64(count))
}

// RecordSearch records the outcome of a search operation.
func RecordSearch(backend, result string) {
	SearchesTotal.WithLabelValues(backend, result).Inc()
}
