package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
)

// circleArgs are shared by every circle query.
var circleArgs = graphql.FieldConfigArgument{
	"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
	"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: DefaultRadius},
}

func circleFromArgs(p graphql.ResolveParams) (domain.GeoPoint, float64, error) {
	lat, _ := p.Args["lat"].(float64)
	lon, _ := p.Args["lon"].(float64)
	radius, _ := p.Args["radius"].(float64)
	center := domain.GeoPoint{Lat: lat, Lon: lon}
	if !center.Valid() {
		return center, 0, fmt.Errorf("%w: lat/lon out of range", domain.ErrInvalidArgument)
	}
	if radius < 1 || radius > usecases.MaxQueryRadius {
		return center, 0, fmt.Errorf("%w: radius must be between 1 and %.0f meters", domain.ErrInvalidArgument, usecases.MaxQueryRadius)
	}
	return center, radius, nil
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	rangeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeohashRange",
		Fields: graphql.Fields{
			"start": &graphql.Field{Type: graphql.String},
			"end":   &graphql.Field{Type: graphql.String},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lat": &graphql.Field{Type: graphql.Float},
			"min_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
		},
	})

	planType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RangePlan",
		Fields: graphql.Fields{
			"center":          &graphql.Field{Type: geoPointType},
			"radius":          &graphql.Field{Type: graphql.Float},
			"bits":            &graphql.Field{Type: graphql.Int},
			"precision_chars": &graphql.Field{Type: graphql.Int},
			"ranges":          &graphql.Field{Type: graphql.NewList(rangeType)},
			"bounds":          &graphql.Field{Type: boundsType},
		},
	})

	recordType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Record",
		Fields: graphql.Fields{
			"key":     &graphql.Field{Type: graphql.String},
			"name":    &graphql.Field{Type: graphql.String},
			"kind":    &graphql.Field{Type: graphql.String},
			"lat":     &graphql.Field{Type: graphql.Float},
			"lng":     &graphql.Field{Type: graphql.Float},
			"geohash": &graphql.Field{Type: graphql.String},
			"title": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if rec, ok := p.Source.(domain.Record); ok {
						return rec.Title(), nil
					}
					return nil, nil
				},
			},
			"icon": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if rec, ok := p.Source.(domain.Record); ok {
						return rec.Kind.Info().Icon, nil
					}
					return nil, nil
				},
			},
			"distance": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if rec, ok := p.Source.(domain.Record); ok && rec.Distance != nil {
						return *rec.Distance, nil
					}
					return nil, nil
				},
			},
		},
	})

	clusterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Cluster",
		Fields: graphql.Fields{
			"geohash": &graphql.Field{Type: graphql.String},
			"imported_at": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(domain.Cluster); ok {
						return c.ImportedAt.UTC().Format("2006-01-02T15:04:05Z"), nil
					}
					return nil, nil
				},
			},
			"records": &graphql.Field{Type: graphql.NewList(recordType)},
		},
	})

	kindType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Kind",
		Fields: graphql.Fields{
			"kind":  &graphql.Field{Type: graphql.String},
			"label": &graphql.Field{Type: graphql.String},
			"icon":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"queryRanges": &graphql.Field{
				Type:        planType,
				Description: "Geohash ranges covering a circle",
				Args:        circleArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center, radius, err := circleFromArgs(p)
					if err != nil {
						return nil, err
					}
					return deps.Clusters.Plan(center, radius)
				},
			},
			"nearby": &graphql.Field{
				Type:        graphql.NewList(recordType),
				Description: "Records within radius metres, closest first",
				Args:        circleArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center, radius, err := circleFromArgs(p)
					if err != nil {
						return nil, err
					}
					return deps.Clusters.Nearby(p.Context, center, radius)
				},
			},
			"clusters": &graphql.Field{
				Type:        graphql.NewList(clusterType),
				Description: "Raw clusters scanned for a circle",
				Args:        circleArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					center, radius, err := circleFromArgs(p)
					if err != nil {
						return nil, err
					}
					return deps.Clusters.QueryClusters(p.Context, center, radius)
				},
			},
			"kinds": &graphql.Field{
				Type:        graphql.NewList(kindType),
				Description: "Record kinds with label and icon",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return domain.Kinds(), nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Query == "" {
			return errBadRequest(c, "query is required")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
