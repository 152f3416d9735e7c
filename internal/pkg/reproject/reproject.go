// Package reproject converts between the Austrian MGI survey grids and WGS 84.
package reproject

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

const (
	WGS84       = "EPSG:4326"
	MGIGKWest   = "EPSG:31254"
	MGIGKCentre = "EPSG:31255"
	MGIGKEast   = "EPSG:31256"
	MGIM28      = "EPSG:31257"
	MGIM31      = "EPSG:31258"
	MGIM34      = "EPSG:31259"

	// DefaultSource is the grid the hydrant survey exports are delivered in.
	DefaultSource = MGIGKEast
)

// ErrUnknownCRS is returned for reference systems that are not registered.
// There is no fallback: a wrong grid would silently misplace every point.
var ErrUnknownCRS = errors.New("unknown coordinate reference system")

// projection is a registered grid: a transverse Mercator zone on the Bessel
// ellipsoid plus the MGI datum shift, or the WGS 84 identity.
type projection struct {
	name     string
	tm       *transverseMercator
	identity bool
}

var registry = map[string]projection{
	WGS84:       {name: "WGS 84", identity: true},
	MGIGKWest:   {name: "MGI / Austria GK West", tm: gaussKrueger(10+1.0/3, 0)},
	MGIGKCentre: {name: "MGI / Austria GK Central", tm: gaussKrueger(13+1.0/3, 0)},
	MGIGKEast:   {name: "MGI / Austria GK East", tm: gaussKrueger(16+1.0/3, 0)},
	MGIM28:      {name: "MGI / Austria M28", tm: gaussKrueger(10+1.0/3, 150000)},
	MGIM31:      {name: "MGI / Austria M31", tm: gaussKrueger(13+1.0/3, 450000)},
	MGIM34:      {name: "MGI / Austria M34", tm: gaussKrueger(16+1.0/3, 750000)},
}

func gaussKrueger(lon0, falseEasting float64) *transverseMercator {
	return newTransverseMercator(bessel1841, lon0, 1.0, falseEasting, -5000000)
}

// CRSInfo describes a registered reference system.
type CRSInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Supported lists the registered reference systems ordered by id.
func Supported() []CRSInfo {
	out := make([]CRSInfo, 0, len(registry))
	for id, p := range registry {
		out = append(out, CRSInfo{ID: id, Name: p.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup normalizes a CRS identifier ("31256", "epsg:31256") and checks it is registered.
func Lookup(crs string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(crs))
	if id != "" && !strings.HasPrefix(id, "EPSG:") {
		id = "EPSG:" + id
	}
	if _, ok := registry[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, crs)
	}
	return id, nil
}

// Transform reprojects a grid point to WGS 84.
func Transform(p domain.ProjectedPoint) (domain.GeoPoint, error) {
	id, err := Lookup(p.CRS)
	if err != nil {
		return domain.GeoPoint{}, err
	}
	proj := registry[id]
	if proj.identity {
		// EPSG:4326 points carry longitude in X and latitude in Y.
		return domain.GeoPoint{Lat: p.Y, Lon: p.X}, nil
	}

	lat, lon := proj.tm.inverse(p.X, p.Y)
	lat, lon = mgiToWGS84.apply(lat, lon, bessel1841, wgs84)
	return domain.GeoPoint{Lat: lat, Lon: lon}, nil
}

// Project is the inverse of Transform: WGS 84 to the named grid.
func Project(g domain.GeoPoint, crs string) (domain.ProjectedPoint, error) {
	id, err := Lookup(crs)
	if err != nil {
		return domain.ProjectedPoint{}, err
	}
	proj := registry[id]
	if proj.identity {
		return domain.ProjectedPoint{X: g.Lon, Y: g.Lat, CRS: id}, nil
	}

	lat, lon := mgiToWGS84.inverted().apply(g.Lat, g.Lon, wgs84, bessel1841)
	x, y := proj.tm.forward(lat, lon)
	return domain.ProjectedPoint{X: x, Y: y, CRS: id}, nil
}
