package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
	"github.com/ff-einsatz/hydrantmap/internal/importer"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/reproject"
)

// DefaultRadius is used when a circle query omits radius.
const DefaultRadius = 500.0

// NearbyResponse is the reconciled result of a circle query.
type NearbyResponse struct {
	Center  domain.GeoPoint `json:"center"`
	Radius  float64         `json:"radius"`
	Count   int             `json:"count"`
	Records []domain.Record `json:"records"`
}

// TransformResponse is one grid point converted to WGS 84.
type TransformResponse struct {
	Source  domain.ProjectedPoint `json:"source"`
	Point   domain.GeoPoint       `json:"point"`
	Geohash string                `json:"geohash"`
}

// parseCircle reads lat, lon and radius from the query string.
func parseCircle(c *fiber.Ctx) (domain.GeoPoint, float64, error) {
	if c.Query("lat") == "" || c.Query("lon") == "" {
		return domain.GeoPoint{}, 0, errors.New("lat and lon are required")
	}
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return domain.GeoPoint{}, 0, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(c.Query("lon"), 64)
	if err != nil {
		return domain.GeoPoint{}, 0, errors.New("lon must be a number")
	}
	center := domain.GeoPoint{Lat: lat, Lon: lon}
	if !center.Valid() {
		return domain.GeoPoint{}, 0, errors.New("lat must be within ±90 and lon within ±180")
	}

	radius := DefaultRadius
	if raw := c.Query("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.GeoPoint{}, 0, errors.New("radius must be a number")
		}
	}
	if radius < 1 || radius > usecases.MaxQueryRadius {
		return domain.GeoPoint{}, 0, fmt.Errorf("radius must be between 1 and %.0f meters", usecases.MaxQueryRadius)
	}
	return center, radius, nil
}

// RangesHandler returns the geohash ranges covering a circle.
func RangesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, err := parseCircle(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		plan, err := deps.Clusters.Plan(center, radius)
		if err != nil {
			return errFromService(c, err)
		}
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(plan)
	}
}

// NearbyHandler returns reconciled records within a radius, closest first.
func NearbyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, err := parseCircle(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		records, err := deps.Clusters.Nearby(c.UserContext(), center, radius)
		if err != nil {
			return errFromService(c, err)
		}
		if records == nil {
			records = []domain.Record{}
		}
		return c.JSON(NearbyResponse{
			Center:  center,
			Radius:  radius,
			Count:   len(records),
			Records: records,
		})
	}
}

// NearbyGeoJSONHandler returns the same records as a FeatureCollection.
func NearbyGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, err := parseCircle(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		records, err := deps.Clusters.Nearby(c.UserContext(), center, radius)
		if err != nil {
			return errFromService(c, err)
		}

		fc := geojson.NewFeatureCollection()
		for _, rec := range records {
			fc.Append(importer.RecordFeature(rec))
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Content-Type", "application/geo+json")
		return c.Send(data)
	}
}

// ClustersHandler returns the raw clusters scanned for a circle, before
// distance filtering and deduplication.
func ClustersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		center, radius, err := parseCircle(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		clusters, err := deps.Clusters.QueryClusters(c.UserContext(), center, radius)
		if err != nil {
			return errFromService(c, err)
		}

		offset, limit := pageParams(c, 50, 200)
		total := len(clusters)
		page := paginate(clusters, offset, limit)

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// KindsHandler returns the record-kind dispatch table.
func KindsHandler() fiber.Handler {
	kinds := domain.Kinds()
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(kinds)
	}
}

// RecordHandler returns one record by key.
func RecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Params("key")
		if key == "" {
			return errBadRequest(c, "record key is required")
		}
		if deps.Records == nil {
			return errUnavailable(c, "record store not configured")
		}
		rec, err := deps.Records.GetByKey(c.UserContext(), deps.Clusters.Collection(), key)
		if err != nil {
			return errFromService(c, err)
		}
		return c.JSON(rec)
	}
}

// CRSHandler lists the reference systems the importer accepts.
func CRSHandler() fiber.Handler {
	supported := reproject.Supported()
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "public, max-age=86400")
		return c.JSON(supported)
	}
}

// TransformHandler converts one grid coordinate to WGS 84.
func TransformHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		x, errX := strconv.ParseFloat(c.Query("x"), 64)
		y, errY := strconv.ParseFloat(c.Query("y"), 64)
		if errX != nil || errY != nil {
			return errBadRequest(c, "x and y are required numbers")
		}
		crs := c.Query("crs", reproject.DefaultSource)

		src := domain.ProjectedPoint{X: x, Y: y, CRS: crs}
		p, err := reproject.Transform(src)
		if errors.Is(err, reproject.ErrUnknownCRS) {
			return errBadRequest(c, err.Error())
		}
		if err != nil {
			return errInternal(c, err.Error())
		}
		src.CRS, _ = reproject.Lookup(crs)
		return c.JSON(TransformResponse{
			Source:  src,
			Point:   p,
			Geohash: geospatial.EncodeGeohash(p, importer.RecordPrecision),
		})
	}
}
