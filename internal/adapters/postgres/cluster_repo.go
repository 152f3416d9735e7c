package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// ClusterRepo implements ports.ClusterRepository and ports.ClusterWriter with pgx.
type ClusterRepo struct {
	db *DB
}

// NewClusterRepo creates a new ClusterRepo.
func NewClusterRepo(db *DB) *ClusterRepo {
	return &ClusterRepo{db: db}
}

const upsertClusterSQL = `
	INSERT INTO clusters (collection, geohash, records, imported_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (collection, geohash) DO UPDATE
	SET records = EXCLUDED.records, imported_at = EXCLUDED.imported_at
`

// WriteBatch commits the clusters in one transaction.
func (r *ClusterRepo) WriteBatch(ctx context.Context, collection string, clusters []domain.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, c := range clusters {
		payload, err := json.Marshal(c.Records)
		if err != nil {
			return fmt.Errorf("encode cluster %s: %w", c.Geohash, err)
		}
		batch.Queue(upsertClusterSQL, collection, c.Geohash, payload, c.ImportedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for _, c := range clusters {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert cluster %s: %w", c.Geohash, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// FindRange returns clusters with start <= geohash <= end, ordered by geohash.
func (r *ClusterRepo) FindRange(ctx context.Context, collection string, rng domain.GeohashRange) ([]domain.Cluster, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT geohash, records, imported_at
		FROM clusters
		WHERE collection = $1 AND geohash >= $2 AND geohash <= $3
		ORDER BY geohash
	`, collection, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []domain.Cluster
	for rows.Next() {
		var c domain.Cluster
		var payload []byte
		if err := rows.Scan(&c.Geohash, &payload, &c.ImportedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &c.Records); err != nil {
			return nil, fmt.Errorf("decode cluster %s: %w", c.Geohash, err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// Count returns the number of clusters stored for a collection.
func (r *ClusterRepo) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM clusters WHERE collection = $1`, collection).Scan(&n)
	return n, err
}
