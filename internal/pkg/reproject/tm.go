package reproject

import "math"

type ellipsoid struct {
	a    float64 // semi-major axis, metres
	invF float64
}

var (
	bessel1841 = ellipsoid{a: 6377397.155, invF: 299.1528128}
	wgs84      = ellipsoid{a: 6378137.0, invF: 298.257223563}
)

func (e ellipsoid) f() float64  { return 1 / e.invF }
func (e ellipsoid) e2() float64 { return e.f() * (2 - e.f()) }

// transverseMercator implements the Krüger series (third order in n), which is
// sub-millimetre inside a three degree zone.
type transverseMercator struct {
	lon0, k0, fe, fn float64

	n     float64
	scale float64 // k0 * rectifying radius
	alpha [3]float64
	beta  [3]float64
	delta [3]float64
}

func newTransverseMercator(e ellipsoid, lon0, k0, falseEasting, falseNorthing float64) *transverseMercator {
	f := e.f()
	n := f / (2 - f)
	n2, n3 := n*n, n*n*n
	rect := e.a / (1 + n) * (1 + n2/4 + n2*n2/64)

	return &transverseMercator{
		lon0: lon0, k0: k0, fe: falseEasting, fn: falseNorthing,
		n:     n,
		scale: k0 * rect,
		alpha: [3]float64{n/2 - 2*n2/3 + 5*n3/16, 13*n2/48 - 3*n3/5, 61 * n3 / 240},
		beta:  [3]float64{n/2 - 2*n2/3 + 37*n3/96, n2/48 + n3/15, 17 * n3 / 480},
		delta: [3]float64{2*n - 2*n2/3 - 2*n3, 7*n2/3 - 8*n3/5, 56 * n3 / 15},
	}
}

// forward maps geodetic degrees to grid metres (easting, northing).
func (t *transverseMercator) forward(lat, lon float64) (x, y float64) {
	phi := toRad(lat)
	lambda := toRad(lon - t.lon0)

	c := 2 * math.Sqrt(t.n) / (1 + t.n)
	tau := math.Sinh(math.Atanh(math.Sin(phi)) - c*math.Atanh(c*math.Sin(phi)))
	xi := math.Atan2(tau, math.Cos(lambda))
	eta := math.Atanh(math.Sin(lambda) / math.Sqrt(1+tau*tau))

	e, n := eta, xi
	for j, a := range t.alpha {
		k := float64(2 * (j + 1))
		e += a * math.Cos(k*xi) * math.Sinh(k*eta)
		n += a * math.Sin(k*xi) * math.Cosh(k*eta)
	}
	return t.fe + t.scale*e, t.fn + t.scale*n
}

// inverse maps grid metres back to geodetic degrees.
func (t *transverseMercator) inverse(x, y float64) (lat, lon float64) {
	xi := (y - t.fn) / t.scale
	eta := (x - t.fe) / t.scale

	xiP, etaP := xi, eta
	for j, b := range t.beta {
		k := float64(2 * (j + 1))
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j, d := range t.delta {
		phi += d * math.Sin(float64(2*(j+1))*chi)
	}
	lambda := math.Atan2(math.Sinh(etaP), math.Cos(xiP))

	return toDeg(phi), t.lon0 + toDeg(lambda)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
