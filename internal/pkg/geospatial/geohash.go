package geospatial

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

const (
	// Base32 is the geohash alphabet, ordered so that byte order equals cell order.
	Base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

	BitsPerChar                  = 5
	MaxBitsPrecision             = 22 * BitsPerChar
	MetersPerDegreeLatitude      = 110574.0
	EarthMeridionalCircumference = 40007860.0
	EarthEquatorialRadius        = 6378137.0
	EarthE2                      = 0.00669447819799
	epsilon                      = 1e-12

	// edgeEpsilon keeps the closed upper edges (lat 90, lon 180) inside the last cell.
	edgeEpsilon = 1e-9

	// MaxChars is the longest geohash the encoder produces.
	MaxChars = 12
)

// ErrInvalidGeohash is returned for strings outside the geohash alphabet.
var ErrInvalidGeohash = errors.New("invalid geohash")

// EncodeGeohash encodes p with the given number of characters (1..12).
func EncodeGeohash(p domain.GeoPoint, chars int) string {
	if chars < 1 {
		chars = 1
	}
	if chars > MaxChars {
		chars = MaxChars
	}
	lat := math.Max(-90, math.Min(p.Lat, 90-edgeEpsilon))
	lon := math.Max(-180, math.Min(p.Lon, 180-edgeEpsilon))
	return geohash.EncodeWithPrecision(lat, lon, uint(chars))
}

// DecodeGeohash returns the cell covered by hash.
func DecodeGeohash(hash string) (domain.Bounds, error) {
	if hash == "" || len(hash) > MaxChars {
		return domain.Bounds{}, fmt.Errorf("%w: %q", ErrInvalidGeohash, hash)
	}
	for i := 0; i < len(hash); i++ {
		if strings.IndexByte(Base32, hash[i]) < 0 {
			return domain.Bounds{}, fmt.Errorf("%w: %q", ErrInvalidGeohash, hash)
		}
	}
	box := geohash.BoundingBox(hash)
	return domain.Bounds{
		MinLat: box.MinLat,
		MinLon: box.MinLng,
		MaxLat: box.MaxLat,
		MaxLon: box.MaxLng,
	}, nil
}

// WrapLongitude folds lon into [-180, 180].
func WrapLongitude(lon float64) float64 {
	if lon <= 180 && lon >= -180 {
		return lon
	}
	adjusted := lon + 180
	if adjusted > 0 {
		return math.Mod(adjusted, 360) - 180
	}
	return 180 - math.Mod(-adjusted, 360)
}

// MetersToLongitudeDegrees converts a distance along a parallel into degrees of
// longitude on the WGS 84 ellipsoid. Near the poles the result saturates at 360.
func MetersToLongitudeDegrees(meters, lat float64) float64 {
	rad := toRad(lat)
	num := math.Cos(rad) * EarthEquatorialRadius * math.Pi / 180
	denom := 1 / math.Sqrt(1-EarthE2*math.Sin(rad)*math.Sin(rad))
	deltaDeg := num * denom
	if deltaDeg < epsilon {
		if meters > 0 {
			return 360
		}
		return 0
	}
	return math.Min(360, meters/deltaDeg)
}
