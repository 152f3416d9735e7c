package geospatial

import (
	"math"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// QueryRanges plans the geohash range scans that together cover the circle of
// radiusMeters around center. Every point within the circle lies in at least
// one returned range. Ranges may overlap; exact duplicates are dropped keeping
// the first occurrence, so the output order is deterministic.
func QueryRanges(center domain.GeoPoint, radiusMeters float64) []domain.GeohashRange {
	bits := queryBits(center, radiusMeters)
	chars := charsForBits(bits)

	points := BoundingBoxCoordinates(center, radiusMeters)
	ranges := make([]domain.GeohashRange, 0, len(points))
	seen := make(map[domain.GeohashRange]struct{}, len(points))
	for _, p := range points {
		r := GeohashQuery(EncodeGeohash(p, chars), bits)
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		ranges = append(ranges, r)
	}
	return ranges
}

// PrecisionChars is the geohash length QueryRanges encodes the probe points with.
func PrecisionChars(center domain.GeoPoint, radiusMeters float64) int {
	return charsForBits(queryBits(center, radiusMeters))
}

func queryBits(center domain.GeoPoint, radiusMeters float64) int {
	return max(1, BoundingBoxBits(center, radiusMeters))
}

func charsForBits(bits int) int {
	return int(math.Ceil(float64(bits) / BitsPerChar))
}

// BoundingBoxBits returns the number of geohash bits whose cells are at least
// as large as the box of half-size sizeMeters around center. Longitude is
// evaluated at both clamped edges so cells keep covering the box at high latitudes.
func BoundingBoxBits(center domain.GeoPoint, sizeMeters float64) int {
	latDelta := sizeMeters / MetersPerDegreeLatitude
	north := math.Min(90, center.Lat+latDelta)
	south := math.Max(-90, center.Lat-latDelta)

	bitsLat := int(math.Floor(latitudeBitsForResolution(sizeMeters))) * 2
	bitsLonNorth := int(math.Floor(longitudeBitsForResolution(sizeMeters, north)))*2 - 1
	bitsLonSouth := int(math.Floor(longitudeBitsForResolution(sizeMeters, south)))*2 - 1

	return min(bitsLat, bitsLonNorth, bitsLonSouth, MaxBitsPrecision)
}

func latitudeBitsForResolution(resolution float64) float64 {
	return math.Min(math.Log2(EarthMeridionalCircumference/2/resolution), MaxBitsPrecision)
}

func longitudeBitsForResolution(resolution, lat float64) float64 {
	degs := MetersToLongitudeDegrees(resolution, lat)
	if math.Abs(degs) > 0.000001 {
		return math.Max(1, math.Log2(360/degs))
	}
	return 1
}

// BoundingBoxCoordinates returns the nine probe points of the box around center:
// center, center-west, center-east, north, north-west, north-east, south,
// south-west, south-east.
func BoundingBoxCoordinates(center domain.GeoPoint, radiusMeters float64) []domain.GeoPoint {
	latDelta := radiusMeters / MetersPerDegreeLatitude
	north := math.Min(90, center.Lat+latDelta)
	south := math.Max(-90, center.Lat-latDelta)

	lonDelta := math.Max(
		MetersToLongitudeDegrees(radiusMeters, north),
		MetersToLongitudeDegrees(radiusMeters, south),
	)
	west := WrapLongitude(center.Lon - lonDelta)
	east := WrapLongitude(center.Lon + lonDelta)

	return []domain.GeoPoint{
		{Lat: center.Lat, Lon: center.Lon},
		{Lat: center.Lat, Lon: west},
		{Lat: center.Lat, Lon: east},
		{Lat: north, Lon: center.Lon},
		{Lat: north, Lon: west},
		{Lat: north, Lon: east},
		{Lat: south, Lon: center.Lon},
		{Lat: south, Lon: west},
		{Lat: south, Lon: east},
	}
}

// GeohashQuery returns the range of geohashes inside the cell of hash truncated
// to bits. When the cell is the last one under its parent, the end is the parent
// prefix followed by "~", which sorts after every alphabet character.
func GeohashQuery(hash string, bits int) domain.GeohashRange {
	precision := charsForBits(bits)
	if len(hash) < precision {
		return domain.GeohashRange{Start: hash, End: hash + "~"}
	}
	hash = hash[:precision]
	base := hash[:len(hash)-1]
	last := indexBase32(hash[len(hash)-1])
	significant := bits - len(base)*BitsPerChar
	unused := BitsPerChar - significant

	start := (last >> unused) << unused
	end := start + (1 << unused)
	if end > 31 {
		return domain.GeohashRange{Start: base + string(Base32[start]), End: base + "~"}
	}
	return domain.GeohashRange{Start: base + string(Base32[start]), End: base + string(Base32[end])}
}

func indexBase32(c byte) int {
	for i := 0; i < len(Base32); i++ {
		if Base32[i] == c {
			return i
		}
	}
	return 0
}
