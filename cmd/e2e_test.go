package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// setupExampleBenchmark points the configuration at the manifest example and
// a model that echoes its prompt.
func setupExampleBenchmark(t *testing.T) string {
	t.Helper()

	manifest, err := filepath.Abs(filepath.Join("..", "examples", "manifest", "manifest.yaml"))
	require.NoError(t, err)

	output := t.TempDir()

	t.Setenv("FIXBENCH_OUTPUT", output)
	t.Setenv("FIXBENCH_BENCHMARK_FORMAT", adapter.FormatManifest)
	t.Setenv("FIXBENCH_BENCHMARK_ROOT", manifest)
	t.Setenv("FIXBENCH_MODEL_PROVIDER", adapter.ProviderCommand)
	t.Setenv("FIXBENCH_MODEL_COMMAND", "cat")

	return output
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd(), newLocateCmd(), newEvalCmd(), newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	return cmd.Execute()
}

func TestEndToEnd_RunEvalView(t *testing.T) {
	output := setupExampleBenchmark(t)
	runs := adapter.NewLocalRunStore(m.Path(output))

	require.NoError(t, execute(t, "locate"))
	require.NoError(t, execute(t, "run", "--tier", "FN,CFN", "-n", "1"))

	record, err := runs.LatestRun(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "command:cat", record.Model)
	require.Len(t, record.Experiments, 2)

	for _, experiment := range record.Experiments {
		assert.Equal(t, 2, experiment.Summary.Bugs, experiment.Mode)
		assert.Equal(t, 2, experiment.Summary.Samples, experiment.Mode)
		assert.Empty(t, experiment.Failures, experiment.Mode)
	}

	assert.FileExists(t, filepath.Join(output, journalFileName))

	require.NoError(t, execute(t, "eval", record.ID))

	rescored, err := runs.LatestRun(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, record.ID, rescored.ID)
	assert.ElementsMatch(t, record.Summaries(), rescored.Summaries())

	require.NoError(t, execute(t, "view", record.ID))
}

func TestEndToEnd_SelectsByPattern(t *testing.T) {
	output := setupExampleBenchmark(t)

	require.NoError(t, execute(t, "run", "--tier", "FLN", "-n", "2", "calc/2"))

	record, err := adapter.NewLocalRunStore(m.Path(output)).LatestRun(t.Context())
	require.NoError(t, err)

	require.Len(t, record.Experiments, 1)
	require.Len(t, record.Experiments[0].Results, 1)
	assert.Equal(t, "calc/2", record.Experiments[0].Results[0].Bug.String())
	assert.Equal(t, 2, record.Experiments[0].Summary.Samples)
}
