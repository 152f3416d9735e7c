package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/metrics"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/telemetry"
)

// MaxQueryRadius bounds a single nearby query.
const MaxQueryRadius = 10000.0

// RangePlan is the planner output for one center and radius.
type RangePlan struct {
	Center         domain.GeoPoint       `json:"center"`
	Radius         float64               `json:"radius"`
	Bits           int                   `json:"bits"`
	PrecisionChars int                   `json:"precision_chars"`
	Ranges         []domain.GeohashRange `json:"ranges"`
	Bounds         domain.Bounds         `json:"bounds"`
}

// DefaultClusterPrecision is the geohash length cluster documents are keyed by.
const DefaultClusterPrecision = 6

// ClusterOptions configures a ClusterService.
type ClusterOptions struct {
	Collection       string
	CacheTTLSeconds  int
	ClusterPrecision int
}

// ClusterService answers "everything within R metres of C" from the cluster store.
type ClusterService struct {
	clusters   ports.ClusterRepository
	cache      ports.CacheService
	collection string
	cacheTTL   int
	precision  int
	logger     *slog.Logger

	mu    sync.RWMutex
	epoch string
}

// NewClusterService creates a new ClusterService. cache may be nil.
func NewClusterService(clusters ports.ClusterRepository, cache ports.CacheService, opts ClusterOptions) *ClusterService {
	if opts.CacheTTLSeconds <= 0 {
		opts.CacheTTLSeconds = 300
	}
	if opts.ClusterPrecision <= 0 {
		opts.ClusterPrecision = DefaultClusterPrecision
	}
	return &ClusterService{
		clusters:   clusters,
		cache:      cache,
		collection: opts.Collection,
		cacheTTL:   opts.CacheTTLSeconds,
		precision:  opts.ClusterPrecision,
		logger:     slog.Default().With("component", "clusters"),
		epoch:      "0",
	}
}

// Collection returns the collection the service reads.
func (s *ClusterService) Collection() string { return s.collection }

// Count returns how many clusters the served collection holds.
func (s *ClusterService) Count(ctx context.Context) (int, error) {
	return s.clusters.Count(ctx, s.collection)
}

// ResetCache moves cached range results to a new key space. It is called
// after an import so no range answers from the previous data set.
func (s *ClusterService) ResetCache(epoch string) {
	s.mu.Lock()
	s.epoch = epoch
	s.mu.Unlock()
}

func (s *ClusterService) cacheKey(r domain.GeohashRange) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("clusters:%s:%s:%s:%s", s.collection, s.epoch, r.Start, r.End)
}

// Plan returns the geohash ranges covering the circle.
func (s *ClusterService) Plan(center domain.GeoPoint, radius float64) (*RangePlan, error) {
	if err := validateQuery(center, radius); err != nil {
		return nil, err
	}
	bits := max(1, geospatial.BoundingBoxBits(center, radius))
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(center.Lat, center.Lon, radius)
	return &RangePlan{
		Center:         center,
		Radius:         radius,
		Bits:           bits,
		PrecisionChars: geospatial.PrecisionChars(center, radius),
		Ranges:         geospatial.QueryRanges(center, radius),
		Bounds:         domain.Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon},
	}, nil
}

// scanRanges adapts the planned ranges to the cluster key length. Clusters are
// keyed by a fixed-length prefix, so a range finer than that prefix would sort
// after the cluster key that contains it; such ranges collapse onto the
// enclosing cluster key.
func (s *ClusterService) scanRanges(center domain.GeoPoint, radius float64) []domain.GeohashRange {
	planned := geospatial.QueryRanges(center, radius)
	out := make([]domain.GeohashRange, 0, len(planned))
	seen := make(map[domain.GeohashRange]struct{}, len(planned))
	for _, r := range planned {
		if len(r.Start) > s.precision {
			prefix := r.Start[:s.precision]
			r = domain.GeohashRange{Start: prefix, End: prefix}
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// QueryClusters runs one range scan per planned range concurrently and
// concatenates the results in range order. A failing scan is logged and
// contributes no clusters; it never fails the whole query.
func (s *ClusterService) QueryClusters(ctx context.Context, center domain.GeoPoint, radius float64) ([]domain.Cluster, error) {
	if err := validateQuery(center, radius); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanQueryClusters)
	defer span.End()

	ranges := s.scanRanges(center, radius)
	span.SetAttributes(attribute.Int("ranges", len(ranges)))

	results := make([][]domain.Cluster, len(ranges))
	var wg sync.WaitGroup
	for i, r := range ranges {
		wg.Add(1)
		go func(i int, r domain.GeohashRange) {
			defer wg.Done()
			clusters, err := s.findRange(ctx, r)
			if err != nil {
				metrics.RangeQueryFailures.WithLabelValues(s.collection).Inc()
				s.logger.Warn("range scan failed",
					"start", r.Start,
					"end", r.End,
					"error", err,
				)
				return
			}
			results[i] = clusters
		}(i, r)
	}
	wg.Wait()

	var out []domain.Cluster
	for _, clusters := range results {
		out = append(out, clusters...)
	}
	return out, nil
}

func (s *ClusterService) findRange(ctx context.Context, r domain.GeohashRange) ([]domain.Cluster, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRangeScan, trace.WithAttributes(
		attribute.String("start", r.Start),
		attribute.String("end", r.End),
	))
	defer span.End()

	cacheKey := s.cacheKey(r)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil && data != nil {
			var clusters []domain.Cluster
			if err := json.Unmarshal(data, &clusters); err == nil {
				metrics.CacheHits.WithLabelValues("clusters").Inc()
				return clusters, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("clusters").Inc()
	}

	start := time.Now()
	metrics.RangeQueries.WithLabelValues(s.collection).Inc()
	clusters, err := s.clusters.FindRange(ctx, s.collection, r)
	metrics.RangeQueryDuration.WithLabelValues(s.collection).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(clusters); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}
	return clusters, nil
}

// Nearby returns the reconciled records within radius of center, closest first.
func (s *ClusterService) Nearby(ctx context.Context, center domain.GeoPoint, radius float64) ([]domain.Record, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanNearby)
	defer span.End()

	clusters, err := s.QueryClusters(ctx, center, radius)
	if err != nil {
		return nil, err
	}
	records := Reconcile(center, radius, clusters)
	metrics.RecordsReconciled.Observe(float64(len(records)))
	span.SetAttributes(attribute.Int("clusters", len(clusters)), attribute.Int("records", len(records)))
	return records, nil
}

// Reconcile flattens clusters into records within radius of center. Records
// reached through overlapping ranges collapse onto one entry by Key; distinct
// records sharing a name are kept. The result is sorted by distance and each
// record carries its distance in metres.
func Reconcile(center domain.GeoPoint, radius float64, clusters []domain.Cluster) []domain.Record {
	seen := make(map[string]struct{})
	var out []domain.Record
	for _, c := range clusters {
		for _, rec := range c.Records {
			d := geospatial.DistanceMeters(center, rec.Location())
			if d > radius {
				continue
			}
			if rec.Key == "" {
				rec.Key = domain.RecordKey(rec.Kind, rec.Name, rec.Geohash)
			}
			if _, dup := seen[rec.Key]; dup {
				continue
			}
			seen[rec.Key] = struct{}{}
			rec.Distance = &d
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Distance < *out[j].Distance })
	return out
}

func validateQuery(center domain.GeoPoint, radius float64) error {
	if !center.Valid() {
		return fmt.Errorf("%w: center %.6f,%.6f out of range", domain.ErrInvalidArgument, center.Lat, center.Lon)
	}
	if math.IsNaN(radius) || radius <= 0 || radius > MaxQueryRadius {
		return fmt.Errorf("%w: radius %.1f", domain.ErrInvalidArgument, radius)
	}
	return nil
}
