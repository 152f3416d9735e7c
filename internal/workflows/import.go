package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ff-einsatz/hydrantmap/internal/importer"
)

// ImportInput is the input for the import workflow.
type ImportInput struct {
	RunID      string
	Collection string
	Input      string
}

// ImportWorkflow runs an import as three activities: prepare the artifacts,
// write the clusters batch by batch, then finish the run. A failing write
// leaves committed batches in place and skips the finish step, so no import
// event is published for a partial import.
func ImportWorkflow(ctx workflow.Context, input ImportInput) (*importer.Result, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting import workflow", "collection", input.Collection, "runID", input.RunID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// A failed batch aborts the write; batches already committed stay and
	// the run is not retried.
	writeOpts := actOpts
	writeOpts.RetryPolicy = &temporal.RetryPolicy{MaximumAttempts: 1}
	writeCtx := workflow.WithActivityOptions(ctx, writeOpts)

	// Step 1: read, convert, cluster, artifacts
	var res *importer.Result
	if err := workflow.ExecuteActivity(ctx, "PrepareImport", input).Get(ctx, &res); err != nil {
		return nil, err
	}

	// Step 2: batched store write
	var batches int
	err := workflow.ExecuteActivity(writeCtx, "WriteClusters", input.Collection).Get(ctx, &batches)
	if err != nil {
		logger.Warn("cluster write failed", "error", err)
		return res, err
	}
	res.Batches = batches

	// Step 3: manifest and event
	if err := workflow.ExecuteActivity(ctx, "FinishImport", res).Get(ctx, &res); err != nil {
		return res, err
	}

	logger.Info("Import finished", "clusters", res.Clusters, "batches", res.Batches)
	return res, nil
}

// WorkflowID names the workflow execution of one import run.
func WorkflowID(collection, runID string) string {
	return fmt.Sprintf("import-%s-%s", collection, runID)
}

// StartImport submits an import to the worker pool on taskQueue. An empty
// RunID is filled with a new UUID.
func StartImport(ctx context.Context, c client.Client, taskQueue string, input ImportInput) (client.WorkflowRun, error) {
	if input.RunID == "" {
		input.RunID = uuid.NewString()
	}
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(input.Collection, input.RunID),
		TaskQueue: taskQueue,
	}
	run, err := c.ExecuteWorkflow(ctx, opts, ImportWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("start import workflow: %w", err)
	}
	return run, nil
}
