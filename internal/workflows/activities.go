package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/importer"
)

// ImportActivities holds the activity implementations for the import workflow.
// Every activity runs on the worker that owns OutputDir, since the write step
// reads the cluster artifact the prepare step left there.
type ImportActivities struct {
	Pipeline *importer.Pipeline
}

// PrepareImport reads, converts and clusters the input and writes the artifacts.
func (a *ImportActivities) PrepareImport(ctx context.Context, in ImportInput) (*importer.Result, error) {
	prep, err := a.Pipeline.Prepare(ctx, in.Collection, in.Input, in.RunID)
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", in.Collection, err)
	}
	return prep.Result, nil
}

// WriteClusters commits the cluster artifact of collection in batches, then
// upserts the records it carries. It returns the number of committed cluster batches.
func (a *ImportActivities) WriteClusters(ctx context.Context, collection string) (int, error) {
	clusters, err := importer.ReadClustersJSONL(a.Pipeline.ClustersPath(collection))
	if err != nil {
		return 0, fmt.Errorf("read clusters: %w", err)
	}
	activity.GetLogger(ctx).Info("writing clusters", "collection", collection, "clusters", len(clusters))
	n, err := a.Pipeline.WriteClusters(ctx, collection, clusters)
	if err != nil {
		return n, err
	}

	var records []domain.Record
	for _, c := range clusters {
		records = append(records, c.Records...)
	}
	return n, a.Pipeline.WriteRecords(ctx, collection, records)
}

// FinishImport stamps the run, writes the manifest and publishes the import event.
func (a *ImportActivities) FinishImport(ctx context.Context, res *importer.Result) (*importer.Result, error) {
	a.Pipeline.Finish(ctx, res)
	return res, nil
}
