package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/core/ports"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/config"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/metrics"
	"github.com/ff-einsatz/hydrantmap/internal/pkg/telemetry"
)

// Options configures a Pipeline.
type Options struct {
	Convert          ConvertOptions
	ClusterPrecision int
	BatchSize        int
	OutputDir        string
}

// OptionsFromConfig maps the import and geohash sections of the configuration
// onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	c := cfg.Import
	return Options{
		Convert: ConvertOptions{
			SourceCRS:   c.SourceCRS,
			XField:      c.XField,
			YField:      c.YField,
			NameField:   c.NameField,
			KindField:   c.KindField,
			DefaultKind: domain.RecordKind(c.DefaultKind),
			Precision:   cfg.Geohash.RecordPrecision,
		},
		ClusterPrecision: cfg.Geohash.ClusterPrecision,
		BatchSize:        c.BatchSize,
		OutputDir:        c.OutputDir,
	}
}

// Result summarizes one import run.
type Result struct {
	RunID      string    `json:"run_id"`
	Collection string    `json:"collection"`
	Input      string    `json:"input"`
	SourceCRS  string    `json:"source_crs"`
	Raw        int       `json:"raw"`
	Converted  int       `json:"converted"`
	Rejected   int       `json:"rejected"`
	Clusters   int       `json:"clusters"`
	Batches    int       `json:"batches"`
	Artifacts  []string  `json:"artifacts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Prepared is the output of the offline stages: clusters ready to be written.
type Prepared struct {
	Result   *Result
	Records  []domain.Record
	Clusters []domain.Cluster
}

// Pipeline runs read, convert, cluster, artifacts and the batched store write.
// writer, records and publisher may be nil; a pipeline without a writer only
// produces artifacts.
type Pipeline struct {
	writer    ports.ClusterWriter
	records   ports.RecordRepository
	publisher ports.EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	opts      Options
}

// NewPipeline creates a Pipeline.
func NewPipeline(writer ports.ClusterWriter, records ports.RecordRepository, publisher ports.EventPublisher,
	clock clockwork.Clock, logger *slog.Logger, opts Options) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts.Convert = opts.Convert.withDefaults()
	if opts.ClusterPrecision <= 0 {
		opts.ClusterPrecision = ClusterPrecision
	}
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	return &Pipeline{
		writer:    writer,
		records:   records,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		opts:      opts,
	}
}

// Run imports the CSV export at input into collection.
func (p *Pipeline) Run(ctx context.Context, collection, input string) (*Result, error) {
	prep, err := p.Prepare(ctx, collection, input, "")
	if err != nil {
		return nil, err
	}
	if err := p.Write(ctx, prep); err != nil {
		return prep.Result, err
	}
	p.Finish(ctx, prep.Result)
	return prep.Result, nil
}

// Prepare runs the offline stages and writes every artifact except the
// manifest. runID may be empty, in which case a new one is generated.
func (p *Pipeline) Prepare(ctx context.Context, collection, input, runID string) (*Prepared, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	res := &Result{
		RunID:      runID,
		Collection: collection,
		Input:      input,
		SourceCRS:  p.opts.Convert.SourceCRS,
		StartedAt:  p.clock.Now().UTC(),
	}
	log := p.logger.With("collection", collection, "run_id", runID)
	tracer := telemetry.Tracer()

	_, span := tracer.Start(ctx, telemetry.SpanImportRead)
	raws, err := p.read(input)
	span.End()
	if err != nil {
		return nil, err
	}
	res.Raw = len(raws)
	log.Info("input read", "rows", len(raws), "input", input)

	_, span = tracer.Start(ctx, telemetry.SpanImportConvert)
	records, rejects, err := ConvertEntries(raws, p.opts.Convert)
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("rejects", len(rejects)))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	res.Converted, res.Rejected = len(records), len(rejects)
	metrics.ImportRecords.WithLabelValues(collection).Add(float64(len(records)))
	for _, r := range rejects {
		metrics.ImportRejects.WithLabelValues(collection, "missing_coordinates").Inc()
		log.Warn("row rejected", "row", r.Row, "reason", r.Reason)
	}
	log.Info("records converted", "records", len(records), "rejected", len(rejects), "crs", p.opts.Convert.SourceCRS)

	_, span = tracer.Start(ctx, telemetry.SpanImportCluster)
	clusters := ClusterRecords(records, p.opts.ClusterPrecision, res.StartedAt)
	span.End()
	res.Clusters = len(clusters)
	log.Info("records clustered", "clusters", len(clusters), "precision", p.opts.ClusterPrecision)

	_, span = tracer.Start(ctx, telemetry.SpanArtifacts)
	res.Artifacts, err = p.writeArtifacts(collection, raws, records, rejects, clusters)
	span.End()
	if err != nil {
		return nil, err
	}

	return &Prepared{Result: res, Records: records, Clusters: clusters}, nil
}

func (p *Pipeline) read(input string) ([]RawRecord, error) {
	if strings.EqualFold(filepath.Ext(input), ".har") {
		raws, err := ReadHARFile(input)
		if err != nil {
			return nil, err
		}
		return DedupeByName(raws, p.opts.Convert.NameField), nil
	}
	return ReadCSVFile(input)
}

func (p *Pipeline) writeArtifacts(collection string, raws []RawRecord, records []domain.Record, rejects []Reject, clusters []domain.Cluster) ([]string, error) {
	a, err := NewArtifacts(p.opts.OutputDir, collection)
	if err != nil {
		return nil, err
	}
	steps := []func() error{
		func() error { return a.WriteRaw(raws) },
		func() error { return a.WriteConverted(records) },
		func() error { return a.WriteClusters(clusters) },
		func() error { return a.WriteCSV(records) },
		func() error { return a.WriteGeoJSON(clusters) },
	}
	if len(rejects) > 0 {
		steps = append(steps, func() error { return a.WriteRejects(rejects) })
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, fmt.Errorf("artifacts: %w", err)
		}
	}
	return a.Written(), nil
}

// ClustersPath is where Prepare leaves the cluster documents of collection.
func (p *Pipeline) ClustersPath(collection string) string {
	dir := p.opts.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, collection+"_clusters.jsonl")
}

// Write commits the prepared clusters batch by batch, each batch in its own
// transaction. The first failing batch stops the write; batches committed
// before it stay committed.
func (p *Pipeline) Write(ctx context.Context, prep *Prepared) error {
	res := prep.Result
	if p.writer == nil {
		p.logger.Info("no store configured, skipping write", "collection", res.Collection)
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanImportWrite)
	defer span.End()

	n, err := p.WriteClusters(ctx, res.Collection, prep.Clusters)
	res.Batches = n
	if err != nil {
		span.RecordError(err)
		return err
	}

	return p.WriteRecords(ctx, res.Collection, prep.Records)
}

// WriteRecords upserts the flat record export in batches. It is a no-op
// without a record repository.
func (p *Pipeline) WriteRecords(ctx context.Context, collection string, records []domain.Record) error {
	if p.records == nil {
		return nil
	}
	for _, b := range Batches(len(records), p.opts.BatchSize) {
		if err := p.records.UpsertBatch(ctx, collection, records[b[0]:b[1]]); err != nil {
			return fmt.Errorf("records %d-%d: %w", b[0], b[1], err)
		}
	}
	return nil
}

// WriteClusters writes clusters in batches and returns how many batches were committed.
func (p *Pipeline) WriteClusters(ctx context.Context, collection string, clusters []domain.Cluster) (int, error) {
	if p.writer == nil {
		return 0, nil
	}
	batches := Batches(len(clusters), p.opts.BatchSize)
	for i, b := range batches {
		if err := p.writer.WriteBatch(ctx, collection, clusters[b[0]:b[1]]); err != nil {
			return i, fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
		}
		metrics.ImportBatches.WithLabelValues(collection).Inc()
		p.logger.Info("batch committed",
			"collection", collection,
			"batch", i+1,
			"of", len(batches),
			"documents", b[1]-b[0],
		)
	}
	return len(batches), nil
}

// Finish stamps the run, writes the manifest and announces the import.
// Failures here are logged; the data is already committed.
func (p *Pipeline) Finish(ctx context.Context, res *Result) {
	res.FinishedAt = p.clock.Now().UTC()
	metrics.ImportDuration.WithLabelValues(res.Collection).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())

	if a, err := NewArtifacts(p.opts.OutputDir, res.Collection); err == nil {
		if err := a.WriteManifest(res); err != nil {
			p.logger.Warn("manifest write failed", "error", err)
		} else {
			res.Artifacts = append(res.Artifacts, a.Path("_manifest.json"))
		}
	}

	if p.publisher != nil && p.writer != nil {
		event := &domain.ImportEvent{
			RunID:      res.RunID,
			Collection: res.Collection,
			Records:    res.Converted,
			Clusters:   res.Clusters,
			FinishedAt: res.FinishedAt,
		}
		if err := p.publisher.PublishImportFinished(ctx, event); err != nil {
			p.logger.Warn("import event publish failed", "error", err)
		}
	}

	p.logger.Info("import finished",
		"collection", res.Collection,
		"run_id", res.RunID,
		"records", res.Converted,
		"rejected", res.Rejected,
		"clusters", res.Clusters,
		"batches", res.Batches,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
}

// HARResult summarizes an extraction.
type HARResult struct {
	Rows      int      `json:"rows"`
	Unique    int      `json:"unique"`
	Converted int      `json:"converted"`
	Rejected  int      `json:"rejected"`
	Files     []string `json:"files"`
}

// ExtractHAR reads a HAR capture, dedupes its rows by name, reprojects them and
// writes <prefix>.jsonl and <prefix>.csv. Nothing is clustered or stored.
func ExtractHAR(input, prefix string, opts ConvertOptions, logger *slog.Logger) (*HARResult, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	raws, err := ReadHARFile(input)
	if err != nil {
		return nil, err
	}
	unique := DedupeByName(raws, opts.NameField)

	records, rejects, err := ConvertEntries(unique, opts)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	for _, r := range rejects {
		logger.Warn("row rejected", "row", r.Row, "reason", r.Reason)
	}

	a, err := NewArtifacts(filepath.Dir(prefix), filepath.Base(prefix))
	if err != nil {
		return nil, err
	}
	if err := a.create(".jsonl", func(w io.Writer) error { return writeJSONL(w, records) }); err != nil {
		return nil, err
	}
	if err := a.create(".csv", func(w io.Writer) error { return WriteRecordsCSV(w, records) }); err != nil {
		return nil, err
	}

	return &HARResult{
		Rows:      len(raws),
		Unique:    len(unique),
		Converted: len(records),
		Rejected:  len(rejects),
		Files:     a.Written(),
	}, nil
}
