package reproject

import "math"

const arcSecond = math.Pi / 180 / 3600

// helmert is a seven-parameter position vector transformation between
// geocentric frames. Rotations are in arc seconds, scale in ppm.
type helmert struct {
	tx, ty, tz float64
	rx, ry, rz float64
	ppm        float64
}

// mgiToWGS84 is EPSG:1618 (MGI to WGS 84, Austria).
var mgiToWGS84 = helmert{
	tx: 577.326, ty: 90.129, tz: 463.919,
	rx: 5.137, ry: 1.474, rz: 5.297,
	ppm: 2.4232,
}

// inverted returns the approximate reverse transformation. Rotations are tiny,
// so negating every parameter is accurate to well below a millimetre.
func (h helmert) inverted() helmert {
	return helmert{
		tx: -h.tx, ty: -h.ty, tz: -h.tz,
		rx: -h.rx, ry: -h.ry, rz: -h.rz,
		ppm: -h.ppm,
	}
}

// apply shifts a surface point (h = 0) from the src datum to the dst datum.
func (h helmert) apply(lat, lon float64, src, dst ellipsoid) (float64, float64) {
	x, y, z := h.geocentric(toECEF(lat, lon, src))
	return fromECEF(x, y, z, dst)
}

// geocentric transforms earth-centred cartesian coordinates in metres.
func (h helmert) geocentric(x, y, z float64) (float64, float64, float64) {
	rx, ry, rz := h.rx*arcSecond, h.ry*arcSecond, h.rz*arcSecond
	s := 1 + h.ppm*1e-6
	return h.tx + s*(x-rz*y+ry*z),
		h.ty + s*(rz*x+y-rx*z),
		h.tz + s*(-ry*x+rx*y+z)
}

func toECEF(lat, lon float64, e ellipsoid) (x, y, z float64) {
	phi, lambda := toRad(lat), toRad(lon)
	e2 := e.e2()
	n := e.a / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi))
	return n * math.Cos(phi) * math.Cos(lambda),
		n * math.Cos(phi) * math.Sin(lambda),
		n * (1 - e2) * math.Sin(phi)
}

func fromECEF(x, y, z float64, e ellipsoid) (lat, lon float64) {
	e2 := e.e2()
	p := math.Hypot(x, y)
	lambda := math.Atan2(y, x)

	phi := math.Atan2(z, p*(1-e2))
	for i := 0; i < 8; i++ {
		n := e.a / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi))
		h := p/math.Cos(phi) - n
		phi = math.Atan2(z, p*(1-e2*n/(n+h)))
	}
	return toDeg(phi), toDeg(lambda)
}
