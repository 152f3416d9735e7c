package usecases

import (
	"math"
	"sync"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
)

// ViewportConfig tunes when a moving map triggers a new query.
type ViewportConfig struct {
	MinRadius        float64 // metres
	MaxRadius        float64 // metres
	RadiusHysteresis float64 // metres
}

// DefaultViewportConfig returns the limits used by the incident map.
func DefaultViewportConfig() ViewportConfig {
	return ViewportConfig{MinRadius: 250, MaxRadius: 2500, RadiusHysteresis: 50}
}

// Query is one nearby lookup requested by a viewport change.
type Query struct {
	Seq    uint64          `json:"seq"`
	Center domain.GeoPoint `json:"center"`
	Radius float64         `json:"radius"`
}

// ViewportTracker turns a stream of viewport changes into cluster queries.
// It belongs to a single client session.
//
// The tracked radius follows half the viewport diagonal but only moves when it
// changes by more than the hysteresis. The tracked center only moves once the
// map has been panned further than the tracked radius. Queries are issued for
// twice the tracked radius so small pans stay inside the loaded area.
type ViewportTracker struct {
	cfg ViewportConfig

	mu          sync.Mutex
	initialized bool
	center      domain.GeoPoint
	radius      float64
	issued      uint64
	applied     uint64
}

// NewViewportTracker creates a tracker. Zero config fields take the defaults.
func NewViewportTracker(cfg ViewportConfig) *ViewportTracker {
	def := DefaultViewportConfig()
	if cfg.MinRadius <= 0 {
		cfg.MinRadius = def.MinRadius
	}
	if cfg.MaxRadius < cfg.MinRadius {
		cfg.MaxRadius = math.Max(def.MaxRadius, cfg.MinRadius)
	}
	if cfg.RadiusHysteresis < 0 {
		cfg.RadiusHysteresis = def.RadiusHysteresis
	}
	return &ViewportTracker{cfg: cfg}
}

// ViewportRadius is half the viewport diagonal clamped to the configured limits.
func (t *ViewportTracker) ViewportRadius(vp domain.Viewport) float64 {
	diag := geospatial.Haversine(vp.North, vp.East, vp.South, vp.West)
	return math.Min(t.cfg.MaxRadius, math.Max(t.cfg.MinRadius, diag/2))
}

// Observe feeds a viewport change. It returns a query and true when the
// tracked center or radius changed.
func (t *ViewportTracker) Observe(vp domain.Viewport) (Query, bool) {
	center := vp.Center()
	radius := t.ViewportRadius(vp)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		t.initialized = true
		t.center = center
		t.radius = radius
		return t.next(), true
	}

	changed := false
	if geospatial.DistanceMeters(t.center, center) > t.radius {
		t.center = center
		changed = true
	}
	if math.Abs(radius-t.radius) > t.cfg.RadiusHysteresis {
		t.radius = radius
		changed = true
	}
	if !changed {
		return Query{}, false
	}
	return t.next(), true
}

// Refresh re-issues the current query, e.g. after the data set changed.
func (t *ViewportTracker) Refresh() (Query, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return Query{}, false
	}
	return t.next(), true
}

func (t *ViewportTracker) next() Query {
	t.issued++
	return Query{Seq: t.issued, Center: t.center, Radius: 2 * t.radius}
}

// Accept reports whether the result of query seq may be applied. Results
// older than the newest applied one are stale and must be dropped.
func (t *ViewportTracker) Accept(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq < t.applied {
		return false
	}
	t.applied = seq
	return true
}
