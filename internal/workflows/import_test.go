package workflows

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
	"github.com/ff-einsatz/hydrantmap/internal/importer"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]domain.Cluster
	calls   int
	fail    bool
}

func (w *recordingWriter) WriteBatch(ctx context.Context, collection string, clusters []domain.Cluster) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail {
		return errors.New("commit failed")
	}
	w.batches = append(w.batches, clusters)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.ImportEvent
}

func (p *recordingPublisher) PublishImportFinished(ctx context.Context, event *domain.ImportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// writeSurvey writes three hydrants 2 km apart on the GK East grid, each in
// its own precision-6 cell.
func writeSurvey(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hydranten.csv")
	data := "Name;Typ;X;Y\n" +
		"H1;hydrant;3044.76;341122.71\n" +
		"H2;hydrant;5044.76;341122.71\n" +
		"H3;unterflur;7044.76;341122.71\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func newEnv(t *testing.T, writer *recordingWriter, pub *recordingPublisher) (*testsuite.TestWorkflowEnvironment, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC))
	p := importer.NewPipeline(writer, nil, pub, clock, logger, importer.Options{
		OutputDir: filepath.Join(dir, "out"),
		BatchSize: 2,
	})

	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(ImportWorkflow)
	env.RegisterActivity(&ImportActivities{Pipeline: p})
	return env, writeSurvey(t, dir)
}

func TestImportWorkflow(t *testing.T) {
	writer := &recordingWriter{}
	pub := &recordingPublisher{}
	env, input := newEnv(t, writer, pub)

	env.ExecuteWorkflow(ImportWorkflow, ImportInput{RunID: "run-1", Collection: "hydranten", Input: input})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res importer.Result
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 3, res.Converted)
	assert.Equal(t, 3, res.Clusters)
	assert.Equal(t, 2, res.Batches)
	assert.False(t, res.FinishedAt.IsZero())

	require.Len(t, writer.batches, 2)
	assert.Len(t, writer.batches[0], 2)
	assert.Len(t, writer.batches[1], 1)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "run-1", pub.events[0].RunID)
	assert.Equal(t, "hydranten", pub.events[0].Collection)
}

func TestImportWorkflow_WriteFailureSkipsFinish(t *testing.T) {
	writer := &recordingWriter{fail: true}
	pub := &recordingPublisher{}
	env, input := newEnv(t, writer, pub)

	env.ExecuteWorkflow(ImportWorkflow, ImportInput{RunID: "run-2", Collection: "hydranten", Input: input})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Empty(t, writer.batches)
	assert.Equal(t, 1, writer.calls, "a failed batch must not be retried")
	assert.Empty(t, pub.events)
}

func TestImportWorkflow_PrepareFailureStops(t *testing.T) {
	writer := &recordingWriter{}
	pub := &recordingPublisher{}
	env, _ := newEnv(t, writer, pub)
	env.OnActivity("PrepareImport", mock.Anything, mock.Anything).
		Return(nil, importer.ErrInputNotFound)

	env.ExecuteWorkflow(ImportWorkflow, ImportInput{RunID: "run-3", Collection: "hydranten", Input: "missing.csv"})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Empty(t, writer.batches)
	assert.Empty(t, pub.events)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "import-hydranten-abc", WorkflowID("hydranten", "abc"))
}
