package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// RecordRepo implements ports.RecordRepository.
type RecordRepo struct {
	db *DB
}

func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// UpsertBatch inserts many records using pgx.Batch.
func (r *RecordRepo) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Key, err)
		}
		batch.Queue(`
			INSERT INTO records (collection, key, name, kind, lat, lng, geohash, fields, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (collection, key) DO UPDATE
			SET name = EXCLUDED.name, kind = EXCLUDED.kind,
			    lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			    geohash = EXCLUDED.geohash, fields = EXCLUDED.fields,
			    updated_at = now()
		`, collection, rec.Key, rec.Name, string(rec.Kind), rec.Lat, rec.Lng, rec.Geohash, fields)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetByKey returns one record or domain.ErrNotFound.
func (r *RecordRepo) GetByKey(ctx context.Context, collection, key string) (*domain.Record, error) {
	var rec domain.Record
	var kind string
	var fields []byte
	err := r.db.Pool.QueryRow(ctx, `
		SELECT key, name, kind, lat, lng, geohash, fields
		FROM records WHERE collection = $1 AND key = $2
	`, collection, key).Scan(&rec.Key, &rec.Name, &kind, &rec.Lat, &rec.Lng, &rec.Geohash, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.Kind = domain.RecordKind(kind)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", key, err)
		}
	}
	return &rec, nil
}
