package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Record is a single georeferenced map feature (hydrant, water source, ...).
// Fields carries the source attributes under normalized column names; numeric
// columns are float64, everything else the original string.
type Record struct {
	Key      string         `json:"key"`
	Name     string         `json:"name"`
	Kind     RecordKind     `json:"kind"`
	Lat      float64        `json:"lat"`
	Lng      float64        `json:"lng"`
	Geohash  string         `json:"geohash"`
	Fields   map[string]any `json:"fields,omitempty"`
	Distance *float64       `json:"distance,omitempty"` // computed field
}

// Location returns the record position as a GeoPoint.
func (r Record) Location() GeoPoint {
	return GeoPoint{Lat: r.Lat, Lon: r.Lng}
}

// Title renders the marker title through the kind dispatch table.
func (r Record) Title() string {
	return r.Kind.Info().Title(r)
}

// Cluster groups every record whose geohash falls inside one fixed-precision cell.
// Clusters are written once per import and never updated in place.
type Cluster struct {
	Geohash    string    `json:"geohash"`
	Records    []Record  `json:"records"`
	ImportedAt time.Time `json:"imported_at"`
}

// ImportEvent announces a finished import so live sessions can refetch.
type ImportEvent struct {
	RunID      string    `json:"run_id"`
	Collection string    `json:"collection"`
	Records    int       `json:"records"`
	Clusters   int       `json:"clusters"`
	FinishedAt time.Time `json:"finished_at"`
}

// RecordKey derives the stable identity of a record. Two features sharing a
// label at different positions get different keys; the same feature seen
// through two overlapping range scans gets the same key.
func RecordKey(kind RecordKind, name, geohash string) string {
	input := fmt.Sprintf("%s|%s|%s", kind, name, geohash)
	hash := sha256.Sum256([]byte(input))
	return string(kind) + "-" + hex.EncodeToString(hash[:8])
}
