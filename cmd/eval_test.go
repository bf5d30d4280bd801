package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fixbench.dev/pkg/fixbench/internal/domain"
	domainmocks "fixbench.dev/pkg/fixbench/internal/domain/mocks"
)

func TestEvalCmd_LatestRunByDefault(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newEvalCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Evaluate", mock.Anything, mock.MatchedBy(func(args domain.EvalArgs) bool {
		return args.RunID == ""
	})).Return(nil)

	cmd.SetArgs([]string{"eval"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestEvalCmd_MatchFlagFeedsConfig(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newEvalCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	t.Cleanup(func() { bindFlagToConfig(evalCmd.Flags().Lookup(scoringMatchFlag), scoringMatchKey) })

	mockWorkflow.On("Evaluate", mock.Anything, mock.MatchedBy(func(args domain.EvalArgs) bool {
		return args.RunID == "3f2a"
	})).Return(nil)

	cmd.SetArgs([]string{"eval", "--match", "exact", "3f2a"})
	err := cmd.Execute()
	require.NoError(t, err)

	assert.Equal(t, "exact", viper.GetString(scoringMatchKey))
}
