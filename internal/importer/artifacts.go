package importer

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

// Artifacts writes the audit files of one import into a directory. Every file
// name starts with the collection name.
type Artifacts struct {
	dir        string
	collection string
	written    []string
}

// NewArtifacts prepares dir for the artifacts of collection.
func NewArtifacts(dir, collection string) (*Artifacts, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Artifacts{dir: dir, collection: collection}, nil
}

// Path returns the path of the artifact with the given suffix.
func (a *Artifacts) Path(suffix string) string {
	return filepath.Join(a.dir, a.collection+suffix)
}

// Written lists the files written so far.
func (a *Artifacts) Written() []string { return a.written }

func (a *Artifacts) create(suffix string, write func(w io.Writer) error) error {
	path := a.Path(suffix)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.written = append(a.written, path)
	return nil
}

// WriteRaw writes the parsed input rows.
func (a *Artifacts) WriteRaw(raws []RawRecord) error {
	return a.create("_raw.jsonl", func(w io.Writer) error { return writeJSONL(w, raws) })
}

// WriteConverted writes the reprojected records.
func (a *Artifacts) WriteConverted(records []domain.Record) error {
	return a.create("_converted.jsonl", func(w io.Writer) error { return writeJSONL(w, records) })
}

// WriteClusters writes one cluster document per line.
func (a *Artifacts) WriteClusters(clusters []domain.Cluster) error {
	return a.create("_clusters.jsonl", func(w io.Writer) error { return writeJSONL(w, clusters) })
}

// WriteRejects writes the rows that were rejected during conversion.
func (a *Artifacts) WriteRejects(rejects []Reject) error {
	return a.create("_rejects.jsonl", func(w io.Writer) error { return writeJSONL(w, rejects) })
}

// WriteCSV writes the flat WGS 84 export.
func (a *Artifacts) WriteCSV(records []domain.Record) error {
	return a.create("_wgs84.csv", func(w io.Writer) error { return WriteRecordsCSV(w, records) })
}

// WriteGeoJSON writes every clustered record as a point feature.
func (a *Artifacts) WriteGeoJSON(clusters []domain.Cluster) error {
	return a.create("_clusters.geojson", func(w io.Writer) error {
		fc := geojson.NewFeatureCollection()
		for _, c := range clusters {
			for _, rec := range c.Records {
				f := RecordFeature(rec)
				f.Properties["cluster"] = c.Geohash
				fc.Append(f)
			}
		}
		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// WriteManifest writes the run summary.
func (a *Artifacts) WriteManifest(res *Result) error {
	return a.create("_manifest.json", func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	})
}

// RecordFeature converts a record to a GeoJSON point feature.
func RecordFeature(rec domain.Record) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{rec.Lng, rec.Lat})
	f.ID = rec.Key
	f.Properties["name"] = rec.Name
	f.Properties["kind"] = string(rec.Kind)
	f.Properties["title"] = rec.Title()
	f.Properties["icon"] = rec.Kind.Info().Icon
	f.Properties["geohash"] = rec.Geohash
	if rec.Distance != nil {
		f.Properties["distance"] = *rec.Distance
	}
	for k, v := range rec.Fields {
		if _, taken := f.Properties[k]; !taken {
			f.Properties[k] = v
		}
	}
	return f
}

var recordColumns = []string{"name", "kind", "lat", "lng", "geohash"}

// WriteRecordsCSV writes records as CSV: name, kind, lat, lng, geohash, then
// the union of all field names in sorted order. A field whose name is already
// a column is written as "src_<name>".
func WriteRecordsCSV(w io.Writer, records []domain.Record) error {
	keySet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec.Fields {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader(keys)); err != nil {
		return err
	}
	for _, rec := range records {
		row := make([]string, 0, len(recordColumns)+len(keys))
		row = append(row,
			rec.Name,
			string(rec.Kind),
			formatFloat(rec.Lat),
			formatFloat(rec.Lng),
			rec.Geohash,
		)
		for _, k := range keys {
			row = append(row, formatValue(rec.Fields[k]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvHeader(keys []string) []string {
	header := append([]string(nil), recordColumns...)
	used := make(map[string]struct{}, len(recordColumns)+len(keys))
	for _, c := range recordColumns {
		used[c] = struct{}{}
	}
	for _, k := range keys {
		used[k] = struct{}{}
	}
	for _, k := range keys {
		col := k
		if slices.Contains(recordColumns, k) {
			for {
				col = "src_" + col
				if _, taken := used[col]; !taken {
					break
				}
			}
			used[col] = struct{}{}
		}
		header = append(header, col)
	}
	return header
}

// ReadClustersJSONL reads a clusters artifact back.
func ReadClustersJSONL(path string) ([]domain.Cluster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var clusters []domain.Cluster
	dec := json.NewDecoder(f)
	for dec.More() {
		var c domain.Cluster
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func writeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return formatFloat(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
