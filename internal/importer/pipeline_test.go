package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
)

// --- Mocks ---

type mockWriter struct {
	mu      sync.Mutex
	batches [][]domain.Cluster
	failOn  int // 1-based batch number to fail, 0 = never
}

func (m *mockWriter) WriteBatch(ctx context.Context, collection string, clusters []domain.Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn > 0 && len(m.batches)+1 == m.failOn {
		return errors.New("commit failed")
	}
	m.batches = append(m.batches, append([]domain.Cluster(nil), clusters...))
	return nil
}

type mockRecords struct {
	upserted int
}

func (m *mockRecords) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	m.upserted += len(records)
	return nil
}

func (m *mockRecords) GetByKey(ctx context.Context, collection, key string) (*domain.Record, error) {
	return nil, domain.ErrNotFound
}

type mockPublisher struct {
	events []*domain.ImportEvent
}

func (m *mockPublisher) PublishImportFinished(ctx context.Context, event *domain.ImportEvent) error {
	m.events = append(m.events, event)
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeGridCSV writes cols*rows hydrants on a 2 km GK East grid, so every
// hydrant lands in its own precision-6 cell, plus one row without coordinates.
func writeGridCSV(t *testing.T, dir string, cols, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Name;Typ;X;Y;Statischer Druck (bar)\n")
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			fmt.Fprintf(&b, "H-%03d-%03d;Überflur;%d;%d;%d\n", i, j, -20000+i*2000, 320000+j*2000, 4+j%3)
		}
	}
	b.WriteString("kaputt;Überflur;;;5\n")
	path := filepath.Join(dir, "hydranten.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestPipeline(dir string, w *mockWriter, rec *mockRecords, pub *mockPublisher) *Pipeline {
	var (
		writer    ports.ClusterWriter
		records   ports.RecordRepository
		publisher ports.EventPublisher
	)
	if w != nil {
		writer = w
	}
	if rec != nil {
		records = rec
	}
	if pub != nil {
		publisher = pub
	}
	clock := clockwork.NewFakeClockAt(fixedNow)
	return NewPipeline(writer, records, publisher, clock, quietLogger(), Options{OutputDir: filepath.Join(dir, "out")})
}

// --- Tests ---

func TestPipeline_Run(t *testing.T) {
	dir := t.TempDir()
	input := writeGridCSV(t, dir, 21, 20)
	w, rec, pub := &mockWriter{}, &mockRecords{}, &mockPublisher{}
	p := newTestPipeline(dir, w, rec, pub)

	res, err := p.Run(context.Background(), "hydranten", input)
	require.NoError(t, err)

	assert.Equal(t, 421, res.Raw)
	assert.Equal(t, 420, res.Converted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 420, res.Clusters)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, fixedNow, res.StartedAt)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, w.batches, 2)
	assert.Len(t, w.batches[0], 400)
	assert.Len(t, w.batches[1], 20)
	assert.Equal(t, fixedNow, w.batches[0][0].ImportedAt)
	assert.Equal(t, 420, rec.upserted)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "hydranten", pub.events[0].Collection)
	assert.Equal(t, res.RunID, pub.events[0].RunID)

	for _, suffix := range []string{"_raw.jsonl", "_converted.jsonl", "_clusters.jsonl", "_wgs84.csv", "_clusters.geojson", "_rejects.jsonl", "_manifest.json"} {
		_, err := os.Stat(filepath.Join(dir, "out", "hydranten"+suffix))
		assert.NoError(t, err, "artifact %s", suffix)
	}
}

func TestPipeline_ClustersRoundTripThroughArtifact(t *testing.T) {
	dir := t.TempDir()
	input := writeGridCSV(t, dir, 3, 2)
	p := newTestPipeline(dir, nil, nil, nil)

	prep, err := p.Prepare(context.Background(), "hydranten", input, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", prep.Result.RunID)

	back, err := ReadClustersJSONL(p.ClustersPath("hydranten"))
	require.NoError(t, err)
	require.Len(t, back, len(prep.Clusters))
	for i := range back {
		assert.Equal(t, prep.Clusters[i].Geohash, back[i].Geohash)
		assert.Len(t, back[i].Records, len(prep.Clusters[i].Records))
	}
}

func TestPipeline_RecordsLandInTheirCluster(t *testing.T) {
	dir := t.TempDir()
	input := writeGridCSV(t, dir, 2, 2)
	p := newTestPipeline(dir, nil, nil, nil)

	prep, err := p.Prepare(context.Background(), "hydranten", input, "")
	require.NoError(t, err)
	for _, c := range prep.Clusters {
		for _, r := range c.Records {
			assert.True(t, strings.HasPrefix(r.Geohash, c.Geohash))
			assert.Equal(t, geospatial.EncodeGeohash(r.Location(), RecordPrecision), r.Geohash)
		}
	}
}

func TestPipeline_BatchFailureStopsWrite(t *testing.T) {
	dir := t.TempDir()
	input := writeGridCSV(t, dir, 21, 20)
	w, pub := &mockWriter{failOn: 2}, &mockPublisher{}
	p := newTestPipeline(dir, w, nil, pub)

	res, err := p.Run(context.Background(), "hydranten", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2/2")
	assert.Len(t, w.batches, 1, "the first batch stays committed")
	assert.Equal(t, 1, res.Batches)
	assert.Empty(t, pub.events, "no event for a failed import")
}

func TestPipeline_MissingInput(t *testing.T) {
	p := newTestPipeline(t.TempDir(), &mockWriter{}, nil, nil)
	_, err := p.Run(context.Background(), "hydranten", "/does/not/exist.csv")
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestPipeline_WithoutWriterOnlyWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := writeGridCSV(t, dir, 1, 1)
	pub := &mockPublisher{}
	p := newTestPipeline(dir, nil, nil, pub)

	res, err := p.Run(context.Background(), "hydranten", input)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Batches)
	assert.Empty(t, pub.events)
}
