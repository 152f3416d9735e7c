package importer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/geospatial"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/reproject"
)

// RecordPrecision is the geohash length stored on every record.
const RecordPrecision = 10

// ErrMissingCoordinates rejects a row without a numeric x/y pair.
var ErrMissingCoordinates = errors.New("missing coordinates")

// ConvertOptions names the source grid and the columns a row is read from.
// Field names are normalized header names.
type ConvertOptions struct {
	SourceCRS   string
	XField      string
	YField      string
	NameField   string
	KindField   string
	DefaultKind domain.RecordKind
	Precision   int
}

// DefaultConvertOptions returns the layout of the hydrant survey export.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		SourceCRS:   reproject.DefaultSource,
		XField:      "x",
		YField:      "y",
		NameField:   "name",
		KindField:   "typ",
		DefaultKind: domain.KindHydrant,
		Precision:   RecordPrecision,
	}
}

func (o ConvertOptions) withDefaults() ConvertOptions {
	def := DefaultConvertOptions()
	if o.SourceCRS == "" {
		o.SourceCRS = def.SourceCRS
	}
	if o.XField == "" {
		o.XField = def.XField
	}
	if o.YField == "" {
		o.YField = def.YField
	}
	if o.NameField == "" {
		o.NameField = def.NameField
	}
	if o.KindField == "" {
		o.KindField = def.KindField
	}
	if o.DefaultKind == "" {
		o.DefaultKind = def.DefaultKind
	}
	if o.Precision <= 0 {
		o.Precision = def.Precision
	}
	return o
}

// ParseField returns v as float64 when the whole trimmed value is a finite
// number, and the untouched string otherwise. "12 bar" stays a string.
func ParseField(v string) any {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return f
}

// ConvertRecord parses every field, reprojects the x/y pair from the source
// grid to WGS 84, and attaches lat, lng and geohash.
func ConvertRecord(raw RawRecord, opts ConvertOptions) (domain.Record, error) {
	opts = opts.withDefaults()

	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[k] = ParseField(v)
	}

	x, okX := fields[opts.XField].(float64)
	y, okY := fields[opts.YField].(float64)
	if !okX || !okY {
		return domain.Record{}, fmt.Errorf("%w: %s=%q %s=%q", ErrMissingCoordinates,
			opts.XField, raw[opts.XField], opts.YField, raw[opts.YField])
	}

	p, err := reproject.Transform(domain.ProjectedPoint{X: x, Y: y, CRS: opts.SourceCRS})
	if err != nil {
		return domain.Record{}, err
	}
	if !p.Valid() {
		return domain.Record{}, fmt.Errorf("%w: %.3f/%.3f reprojects outside WGS 84", ErrMissingCoordinates, x, y)
	}

	name := strings.TrimSpace(raw[opts.NameField])
	kind := domain.ParseKind(raw[opts.KindField], opts.DefaultKind)
	gh := geospatial.EncodeGeohash(p, opts.Precision)

	return domain.Record{
		Key:     domain.RecordKey(kind, name, gh),
		Name:    name,
		Kind:    kind,
		Lat:     p.Lat,
		Lng:     p.Lon,
		Geohash: gh,
		Fields:  fields,
	}, nil
}

// Reject is an input row that could not be converted.
type Reject struct {
	Row    int    `json:"row"` // 1-based data row, header excluded
	Reason string `json:"reason"`
}

// ConvertEntries converts every row. Rows without coordinates are collected as
// rejects; an unknown source grid aborts the whole conversion.
func ConvertEntries(raws []RawRecord, opts ConvertOptions) ([]domain.Record, []Reject, error) {
	opts = opts.withDefaults()
	if _, err := reproject.Lookup(opts.SourceCRS); err != nil {
		return nil, nil, err
	}

	records := make([]domain.Record, 0, len(raws))
	var rejects []Reject
	for i, raw := range raws {
		rec, err := ConvertRecord(raw, opts)
		if err != nil {
			if errors.Is(err, ErrMissingCoordinates) {
				rejects = append(rejects, Reject{Row: i + 1, Reason: err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, rejects, nil
}
