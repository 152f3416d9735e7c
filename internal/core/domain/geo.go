package domain

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies inside the WGS 84 coordinate range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// ProjectedPoint is a planar coordinate in metres of the named reference system.
// It must never be mixed with a point of another CRS without reprojection.
type ProjectedPoint struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	CRS string  `json:"crs"`
}

// GeohashRange is an inclusive scan [Start, End] over a geohash-sorted index.
type GeohashRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Viewport is the visible map rectangle reported by a client.
type Viewport struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CrossesAntimeridian reports whether the viewport spans the 180° meridian,
// which clients signal by an east edge west of the west edge.
func (v Viewport) CrossesAntimeridian() bool { return v.East < v.West }

// Center returns the midpoint of the viewport.
func (v Viewport) Center() GeoPoint {
	lon := (v.East + v.West) / 2
	if v.CrossesAntimeridian() {
		lon = (v.East + v.West + 360) / 2
		if lon > 180 {
			lon -= 360
		}
	}
	return GeoPoint{Lat: (v.North + v.South) / 2, Lon: lon}
}
