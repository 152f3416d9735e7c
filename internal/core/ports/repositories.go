package ports

import (
	"context"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// ClusterRepository reads geohash clusters from a geohash-sorted store.
type ClusterRepository interface {
	// FindRange returns the clusters whose geohash lies in [r.Start, r.End],
	// compared bytewise, ordered by geohash.
	FindRange(ctx context.Context, collection string, r domain.GeohashRange) ([]domain.Cluster, error)
	Count(ctx context.Context, collection string) (int, error)
}

// ClusterWriter commits cluster documents. Each call is one atomic batch.
type ClusterWriter interface {
	WriteBatch(ctx context.Context, collection string, clusters []domain.Cluster) error
}

// RecordRepository persists the flat record export keyed by Record.Key.
type RecordRepository interface {
	UpsertBatch(ctx context.Context, collection string, records []domain.Record) error
	GetByKey(ctx context.Context, collection, key string) (*domain.Record, error)
}
