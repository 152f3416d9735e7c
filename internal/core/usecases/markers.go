package usecases

import (
	"sort"
	"sync"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// Marker is the rendered form of a record on the map.
type Marker struct {
	Key      string            `json:"key"`
	Kind     domain.RecordKind `json:"kind"`
	Title    string            `json:"title"`
	Icon     string            `json:"icon"`
	Lat      float64           `json:"lat"`
	Lng      float64           `json:"lng"`
	Distance float64           `json:"distance,omitempty"`
}

// NewMarker renders a record through the kind dispatch table.
func NewMarker(r domain.Record) Marker {
	m := Marker{
		Key:   r.Key,
		Kind:  r.Kind,
		Title: r.Title(),
		Icon:  r.Kind.Info().Icon,
		Lat:   r.Lat,
		Lng:   r.Lng,
	}
	if r.Distance != nil {
		m.Distance = *r.Distance
	}
	return m
}

// MarkerLayer is the set of markers one session has put on its map. The layer
// owns its markers; nothing outside the session can add or remove them.
type MarkerLayer struct {
	mu     sync.Mutex
	shown  map[string]Marker
	closed bool
}

// NewMarkerLayer creates an empty layer.
func NewMarkerLayer() *MarkerLayer {
	return &MarkerLayer{shown: make(map[string]Marker)}
}

// Apply replaces the layer contents with records. It returns the markers that
// are new, in record order, and the keys of markers that disappeared, sorted.
func (l *MarkerLayer) Apply(records []domain.Record) (added []Marker, removed []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil
	}

	next := make(map[string]Marker, len(records))
	for _, r := range records {
		if r.Key == "" {
			r.Key = domain.RecordKey(r.Kind, r.Name, r.Geohash)
		}
		if _, dup := next[r.Key]; dup {
			continue
		}
		m := NewMarker(r)
		next[r.Key] = m
		if _, ok := l.shown[r.Key]; !ok {
			added = append(added, m)
		}
	}
	for key := range l.shown {
		if _, ok := next[key]; !ok {
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)

	l.shown = next
	return added, removed
}

// Len returns the number of markers currently shown.
func (l *MarkerLayer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.shown)
}

// Close releases every marker and returns their keys. Apply is a no-op afterwards.
func (l *MarkerLayer) Close() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	keys := make([]string, 0, len(l.shown))
	for key := range l.shown {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	l.shown = nil
	return keys
}
