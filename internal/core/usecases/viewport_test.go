package usecases_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
)

const metersPerDegree = 111195.0

// viewportAround builds a square viewport whose half diagonal is halfDiag metres.
func viewportAround(c domain.GeoPoint, halfDiag float64) domain.Viewport {
	half := halfDiag / math.Sqrt2
	dLat := half / metersPerDegree
	dLon := half / (metersPerDegree * math.Cos(c.Lat*math.Pi/180))
	return domain.Viewport{North: c.Lat + dLat, South: c.Lat - dLat, East: c.Lon + dLon, West: c.Lon - dLon}
}

func north(c domain.GeoPoint, meters float64) domain.GeoPoint {
	return domain.GeoPoint{Lat: c.Lat + meters/metersPerDegree, Lon: c.Lon}
}

func TestViewportTracker_FirstObservationQueriesTwiceTheRadius(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())

	q, ok := tr.Observe(viewportAround(incidentCenter, 600))
	require.True(t, ok)
	assert.Equal(t, uint64(1), q.Seq)
	assert.InDelta(t, 1200, q.Radius, 2)
	assert.InDelta(t, incidentCenter.Lat, q.Center.Lat, 1e-9)
	assert.InDelta(t, incidentCenter.Lon, q.Center.Lon, 1e-9)
}

func TestViewportTracker_RadiusClamped(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	assert.Equal(t, 250.0, tr.ViewportRadius(viewportAround(incidentCenter, 40)))
	assert.Equal(t, 2500.0, tr.ViewportRadius(viewportAround(incidentCenter, 40000)))

	q, ok := tr.Observe(viewportAround(incidentCenter, 40))
	require.True(t, ok)
	assert.Equal(t, 500.0, q.Radius)
}

func TestViewportTracker_SmallPanIsIgnored(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	_, _ = tr.Observe(viewportAround(incidentCenter, 600))

	_, ok := tr.Observe(viewportAround(north(incidentCenter, 300), 600))
	assert.False(t, ok, "pan inside the tracked radius must not re-query")
}

func TestViewportTracker_LargePanRecenters(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	_, _ = tr.Observe(viewportAround(incidentCenter, 600))

	moved := north(incidentCenter, 700)
	q, ok := tr.Observe(viewportAround(moved, 600))
	require.True(t, ok)
	assert.Equal(t, uint64(2), q.Seq)
	assert.Less(t, geospatial.DistanceMeters(moved, q.Center), 0.01)
}

func TestViewportTracker_RadiusHysteresis(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	_, _ = tr.Observe(viewportAround(incidentCenter, 600))

	_, ok := tr.Observe(viewportAround(incidentCenter, 630))
	assert.False(t, ok, "radius change within hysteresis must not re-query")

	q, ok := tr.Observe(viewportAround(incidentCenter, 700))
	require.True(t, ok)
	assert.InDelta(t, 1400, q.Radius, 2)
}

func TestViewportTracker_StaleResultsDropped(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	q1, _ := tr.Observe(viewportAround(incidentCenter, 600))
	q2, ok := tr.Observe(viewportAround(north(incidentCenter, 2000), 600))
	require.True(t, ok)
	require.Greater(t, q2.Seq, q1.Seq)

	// q2 resolves first; the slower q1 must not overwrite it.
	assert.True(t, tr.Accept(q2.Seq))
	assert.False(t, tr.Accept(q1.Seq))
	assert.True(t, tr.Accept(q2.Seq))
}

func TestViewportTracker_InOrderResultsAccepted(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	q1, _ := tr.Observe(viewportAround(incidentCenter, 600))
	q2, _ := tr.Observe(viewportAround(north(incidentCenter, 2000), 600))

	assert.True(t, tr.Accept(q1.Seq))
	assert.True(t, tr.Accept(q2.Seq))
}

func TestViewportTracker_Refresh(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.ViewportConfig{})
	_, ok := tr.Refresh()
	assert.False(t, ok, "nothing to refresh before the first viewport")

	q1, _ := tr.Observe(viewportAround(incidentCenter, 600))
	q2, ok := tr.Refresh()
	require.True(t, ok)
	assert.Equal(t, q1.Seq+1, q2.Seq)
	assert.Equal(t, q1.Center, q2.Center)
	assert.Equal(t, q1.Radius, q2.Radius)
}

func TestViewportTracker_AntimeridianViewport(t *testing.T) {
	tr := usecases.NewViewportTracker(usecases.DefaultViewportConfig())
	vp := domain.Viewport{North: 0.01, South: -0.01, East: -179.99, West: 179.99}

	q, ok := tr.Observe(vp)
	require.True(t, ok)
	assert.InDelta(t, 0, q.Center.Lat, 1e-9)
	assert.InDelta(t, 180, math.Abs(q.Center.Lon), 1e-9)
	assert.Less(t, geospatial.DistanceMeters(q.Center, domain.GeoPoint{Lat: 0, Lon: 180}), 0.01)
	assert.Less(t, q.Radius, 2*2500.0)
}
