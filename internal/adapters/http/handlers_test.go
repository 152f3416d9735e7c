package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/ff-einsatz/hydrantmap/internal/adapters/http"
	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/usecases"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
)

// ---- Mock repositories ----

type mockClusterRepo struct {
	findRangeFn func(ctx context.Context, collection string, r domain.GeohashRange) ([]domain.Cluster, error)
}

func (m *mockClusterRepo) FindRange(ctx context.Context, collection string, r domain.GeohashRange) ([]domain.Cluster, error) {
	if m.findRangeFn != nil {
		return m.findRangeFn(ctx, collection, r)
	}
	return nil, nil
}

func (m *mockClusterRepo) Count(ctx context.Context, collection string) (int, error) { return 0, nil }

type mockRecordRepo struct {
	getByKeyFn func(ctx context.Context, collection, key string) (*domain.Record, error)
}

func (m *mockRecordRepo) UpsertBatch(ctx context.Context, collection string, records []domain.Record) error {
	return nil
}

func (m *mockRecordRepo) GetByKey(ctx context.Context, collection, key string) (*domain.Record, error) {
	if m.getByKeyFn != nil {
		return m.getByKeyFn(ctx, collection, key)
	}
	return nil, domain.ErrNotFound
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

type mockConn struct{ up bool }

func (m mockConn) Connected() bool { return m.up }

// ---- Test helpers ----

const testCollection = "hydranten"

var incidentCenter = domain.GeoPoint{Lat: 47.9482913, Lon: 16.848222}

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(repo *mockClusterRepo, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Clusters: usecases.NewClusterService(repo, nil, usecases.ClusterOptions{Collection: testCollection}),
		Records:  &mockRecordRepo{},
		Viewport: usecases.DefaultViewportConfig(),
		Sessions: handler.NewSessionHub(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func recordNorthOf(center domain.GeoPoint, meters float64, name string) domain.Record {
	p := domain.GeoPoint{Lat: center.Lat + meters/geospatial.MetersPerDegreeLatitude, Lon: center.Lon}
	gh := geospatial.EncodeGeohash(p, 10)
	return domain.Record{
		Key:     domain.RecordKey(domain.KindHydrant, name, gh),
		Name:    name,
		Kind:    domain.KindHydrant,
		Lat:     p.Lat,
		Lng:     p.Lon,
		Geohash: gh,
		Fields:  map[string]any{"leistung": 1200.0},
	}
}

// everyRangeRepo answers each scan with the same cluster, so the same record
// is seen through several ranges.
func everyRangeRepo(records ...domain.Record) *mockClusterRepo {
	return &mockClusterRepo{
		findRangeFn: func(ctx context.Context, collection string, r domain.GeohashRange) ([]domain.Cluster, error) {
			return []domain.Cluster{{Geohash: r.Start, Records: records, ImportedAt: time.Unix(0, 0).UTC()}}, nil
		},
	}
}

func circleQuery(path string, radius float64) string {
	return fmt.Sprintf("%s?lat=%.7f&lon=%.7f&radius=%.0f", path, incidentCenter.Lat, incidentCenter.Lon, radius)
}

func decodeAPIError(t *testing.T, body io.Reader) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.NewDecoder(body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

// ---- System ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "healthy" || body["collection"] != testCollection {
		t.Errorf("unexpected body %v", body)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		opt  func(*handler.Dependencies)
		want int
	}{
		{"all up", func(d *handler.Dependencies) {
			d.DB, d.NATS, d.Cache = mockPinger{}, mockConn{up: true}, mockPinger{}
		}, 200},
		{"db down", func(d *handler.Dependencies) {
			d.DB, d.NATS = mockPinger{err: errors.New("refused")}, mockConn{up: true}
		}, 503},
		{"nats down", func(d *handler.Dependencies) {
			d.DB, d.NATS = mockPinger{}, mockConn{up: false}
		}, 503},
		{"cache down", func(d *handler.Dependencies) {
			d.DB, d.Cache = mockPinger{}, mockPinger{err: errors.New("timeout")}
		}, 503},
		{"no db", func(d *handler.Dependencies) {}, 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(&mockClusterRepo{}, tt.opt))
			resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestReady_ReportsClusterCount(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}, func(d *handler.Dependencies) {
		d.DB = mockPinger{}
	}))
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status   string            `json:"status"`
		Clusters *int              `json:"clusters"`
		Checks   map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Clusters == nil || *body.Clusters != 0 {
		t.Errorf("expected clusters 0, got %v", body.Clusters)
	}
	if body.Checks["nats"] != "not configured" || body.Checks["database"] != "ok" {
		t.Errorf("unexpected checks %v", body.Checks)
	}
}

func TestSecurityHeaders(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))
	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/kinds", nil), -1)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-API-Version":          "1.0.0",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected a request id header")
	}
}

// ---- Ranges ----

func TestRanges_Success(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/ranges", 1000), nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var plan usecases.RangePlan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatal(err)
	}
	if len(plan.Ranges) == 0 || len(plan.Ranges) > 9 {
		t.Errorf("expected 1..9 ranges, got %d", len(plan.Ranges))
	}
	if plan.PrecisionChars < 1 || plan.PrecisionChars > 12 {
		t.Errorf("precision chars out of range: %d", plan.PrecisionChars)
	}
	for _, r := range plan.Ranges {
		if r.Start > r.End {
			t.Errorf("range %v is inverted", r)
		}
	}
}

func TestRanges_BadParams(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	for _, url := range []string{
		"/v1/ranges",
		"/v1/ranges?lat=47.9",
		"/v1/ranges?lat=abc&lon=16.8",
		"/v1/ranges?lat=95&lon=16.8",
		"/v1/ranges?lat=47.9&lon=16.8&radius=0",
		"/v1/ranges?lat=47.9&lon=16.8&radius=10001",
		"/v1/ranges?lat=47.9&lon=16.8&radius=far",
	} {
		resp, _ := app.Test(httptest.NewRequest("GET", url, nil), -1)
		if resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", url, resp.StatusCode)
			continue
		}
		if apiErr := decodeAPIError(t, resp.Body); apiErr.Code != "bad_request" {
			t.Errorf("%s: expected bad_request, got %s", url, apiErr.Code)
		}
	}
}

// ---- Nearby ----

func TestNearby_Success(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	far := recordNorthOf(incidentCenter, 5000, "H 99")
	app := setupApp(makeDeps(everyRangeRepo(near, far)))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/hydrants/nearby", 1000), nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result handler.NearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Count != 1 || len(result.Records) != 1 {
		t.Fatalf("expected exactly the near record, got %+v", result.Records)
	}
	rec := result.Records[0]
	if rec.Key != near.Key {
		t.Errorf("expected key %s, got %s", near.Key, rec.Key)
	}
	if rec.Distance == nil || math.Abs(*rec.Distance-300) > 2 {
		t.Errorf("expected distance ~300 m, got %v", rec.Distance)
	}
	if result.Radius != 1000 {
		t.Errorf("expected radius echoed, got %v", result.Radius)
	}
}

func TestNearby_DefaultRadius(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	url := fmt.Sprintf("/v1/hydrants/nearby?lat=%f&lon=%f", incidentCenter.Lat, incidentCenter.Lon)
	resp, _ := app.Test(httptest.NewRequest("GET", url, nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result handler.NearbyResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Radius != handler.DefaultRadius {
		t.Errorf("expected default radius %v, got %v", handler.DefaultRadius, result.Radius)
	}
	if result.Records == nil {
		t.Error("records must be an empty list, not null")
	}
}

func TestNearby_BadRadius(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/hydrants/nearby", 50000), nil), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestNearby_FailingScansDegrade(t *testing.T) {
	repo := &mockClusterRepo{
		findRangeFn: func(ctx context.Context, collection string, r domain.GeohashRange) ([]domain.Cluster, error) {
			return nil, errors.New("connection reset")
		},
	}
	app := setupApp(makeDeps(repo))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/hydrants/nearby", 1000), nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result handler.NearbyResponse
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 0 {
		t.Errorf("expected no records, got %d", result.Count)
	}
}

func TestNearbyGeoJSON(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	app := setupApp(makeDeps(everyRangeRepo(near)))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/hydrants/nearby.geojson", 1000), nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string         `json:"id"`
			Properties map[string]any `json:"properties"`
			Geometry   struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Fatalf("unexpected collection %+v", fc)
	}
	f := fc.Features[0]
	if f.ID != near.Key || f.Geometry.Type != "Point" {
		t.Errorf("unexpected feature %+v", f)
	}
	if f.Geometry.Coordinates[0] != near.Lng || f.Geometry.Coordinates[1] != near.Lat {
		t.Errorf("coordinates must be [lng, lat], got %v", f.Geometry.Coordinates)
	}
	if f.Properties["title"] != "Hydrant H 17 (1200 l/min)" {
		t.Errorf("unexpected title %v", f.Properties["title"])
	}
}

func TestNearby_LegacyPathIsDeprecated(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/hydranten/nearby", 500), nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, "/v1/hydrants/nearby") {
		t.Errorf("expected successor link, got %q", link)
	}
	if resp.Header.Get("Sunset") == "" {
		t.Error("expected Sunset header")
	}
}

// ---- Clusters ----

func TestClusters_Pagination(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	app := setupApp(makeDeps(everyRangeRepo(near)))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/clusters", 1000)+"&limit=1", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Cluster `json:"data"`
		Pagination handler.Pagination
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total < 1 {
		t.Fatalf("expected at least one cluster, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 1 || result.Pagination.Limit != 1 {
		t.Errorf("expected a page of 1, got %d (limit %d)", len(result.Data), result.Pagination.Limit)
	}
	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="first"`) || !strings.Contains(link, "lat=") {
		t.Errorf("Link header must keep the circle parameters: %q", link)
	}
}

func TestClusters_OffsetPastEnd(t *testing.T) {
	app := setupApp(makeDeps(everyRangeRepo()))

	resp, _ := app.Test(httptest.NewRequest("GET", circleQuery("/v1/clusters", 1000)+"&offset=1000", nil), -1)
	var result struct {
		Data []domain.Cluster `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Data == nil || len(result.Data) != 0 {
		t.Errorf("expected empty page, got %v", result.Data)
	}
}

// ---- Reference ----

func TestKinds(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/kinds", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var kinds []domain.KindInfo
	if err := json.NewDecoder(resp.Body).Decode(&kinds); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != len(domain.Kinds()) {
		t.Fatalf("expected %d kinds, got %d", len(domain.Kinds()), len(kinds))
	}
	for _, k := range kinds {
		if k.Label == "" || k.Icon == "" {
			t.Errorf("kind %s lacks label or icon", k.Kind)
		}
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestCRS(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/crs", nil), -1)
	var list []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 7 {
		t.Fatalf("expected 7 systems, got %d", len(list))
	}
	if list[0].ID != "EPSG:31254" {
		t.Errorf("expected list ordered by id, got %s first", list[0].ID)
	}
}

func TestTransform(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/transform?x=3044.76&y=341122.71&crs=31256", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result handler.TransformResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if math.Abs(result.Point.Lat-48.208493) > 1e-3 || math.Abs(result.Point.Lon-16.372489) > 1e-3 {
		t.Errorf("unexpected point %+v", result.Point)
	}
	if result.Source.CRS != "EPSG:31256" {
		t.Errorf("expected normalized CRS, got %q", result.Source.CRS)
	}
	if !strings.HasPrefix(result.Geohash, "u2edk") || len(result.Geohash) != 10 {
		t.Errorf("unexpected geohash %q", result.Geohash)
	}
}

func TestTransform_BadInput(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	for _, url := range []string{
		"/v1/transform?x=1",
		"/v1/transform?x=1&y=2&crs=EPSG:3857",
	} {
		resp, _ := app.Test(httptest.NewRequest("GET", url, nil), -1)
		if resp.StatusCode != 400 {
			t.Errorf("%s: expected 400, got %d", url, resp.StatusCode)
		}
	}
}

// ---- Records ----

func TestRecord_Found(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	deps := makeDeps(&mockClusterRepo{}, func(d *handler.Dependencies) {
		d.Records = &mockRecordRepo{
			getByKeyFn: func(ctx context.Context, collection, key string) (*domain.Record, error) {
				if collection != testCollection || key != near.Key {
					return nil, fmt.Errorf("record %s: %w", key, domain.ErrNotFound)
				}
				return &near, nil
			},
		}
	})
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/records/"+near.Key, nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var rec domain.Record
	json.NewDecoder(resp.Body).Decode(&rec)
	if rec.Name != "H 17" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestRecord_NotFound(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/records/hydrant-0000", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if apiErr := decodeAPIError(t, resp.Body); apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %s", apiErr.Code)
	}
}

// ---- Conditional requests ----

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/kinds", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/kinds", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestETag_IfNoneMatchList(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/kinds", nil), -1)
	etag := resp.Header.Get("ETag")
	strong := strings.TrimPrefix(etag, "W/")

	tests := []struct {
		header string
		want   int
	}{
		{`W/"stale", ` + etag, 304},
		{strong, 304},
		{"*", 304},
		{`W/"stale"`, 200},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/v1/kinds", nil)
		req.Header.Set("If-None-Match", tt.header)
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != tt.want {
			t.Errorf("If-None-Match %q: expected %d, got %d", tt.header, tt.want, resp.StatusCode)
		}
	}
}

// ---- GraphQL ----

func graphQL(t *testing.T, app *fiber.App, query string) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestGraphQL_Nearby(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	app := setupApp(makeDeps(everyRangeRepo(near)))

	out := graphQL(t, app, fmt.Sprintf(
		`{ nearby(lat: %f, lon: %f, radius: 1000) { key name title icon distance } }`,
		incidentCenter.Lat, incidentCenter.Lon))
	if out["errors"] != nil {
		t.Fatalf("unexpected errors %v", out["errors"])
	}
	list := out["data"].(map[string]any)["nearby"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
	rec := list[0].(map[string]any)
	if rec["key"] != near.Key || rec["icon"] != "hydrant.png" {
		t.Errorf("unexpected record %v", rec)
	}
	if d, _ := rec["distance"].(float64); math.Abs(d-300) > 2 {
		t.Errorf("expected distance ~300, got %v", rec["distance"])
	}
}

func TestGraphQL_QueryRanges(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	out := graphQL(t, app, fmt.Sprintf(
		`{ queryRanges(lat: %f, lon: %f, radius: 1000) { bits precision_chars ranges { start end } } }`,
		incidentCenter.Lat, incidentCenter.Lon))
	if out["errors"] != nil {
		t.Fatalf("unexpected errors %v", out["errors"])
	}
	plan := out["data"].(map[string]any)["queryRanges"].(map[string]any)
	if ranges := plan["ranges"].([]any); len(ranges) == 0 {
		t.Error("expected ranges")
	}
}

func TestGraphQL_Clusters(t *testing.T) {
	near := recordNorthOf(incidentCenter, 300, "H 17")
	app := setupApp(makeDeps(everyRangeRepo(near)))

	out := graphQL(t, app, fmt.Sprintf(
		`{ clusters(lat: %f, lon: %f, radius: 1000) { geohash imported_at records { name } } }`,
		incidentCenter.Lat, incidentCenter.Lon))
	if out["errors"] != nil {
		t.Fatalf("unexpected errors %v", out["errors"])
	}
	clusters := out["data"].(map[string]any)["clusters"].([]any)
	if len(clusters) == 0 {
		t.Fatal("expected clusters")
	}
	first := clusters[0].(map[string]any)
	if first["imported_at"] != "1970-01-01T00:00:00Z" {
		t.Errorf("unexpected imported_at %v", first["imported_at"])
	}
}

func TestGraphQL_InvalidRadius(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	out := graphQL(t, app, `{ nearby(lat: 47.9, lon: 16.8, radius: 20000) { key } }`)
	if out["errors"] == nil {
		t.Fatal("expected errors for radius above the limit")
	}
}

func TestGraphQL_EmptyQuery(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Docs ----

func TestDocs(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/docs", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(readBody(t, resp.Body)), "swagger-ui") {
		t.Error("expected Swagger UI page")
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(&mockClusterRepo{}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", resp.StatusCode)
	}
}
