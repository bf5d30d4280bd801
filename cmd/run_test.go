package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fixbench.dev/pkg/fixbench/internal/domain"
	domainmocks "fixbench.dev/pkg/fixbench/internal/domain/mocks"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

func TestRunCmd_Defaults(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Parallel == 2 &&
			args.Samples == domain.DefaultSamples &&
			args.Shard == m.Shard{} &&
			!args.Resume &&
			len(args.Patterns) == 0 &&
			assert.ObjectsAreEqual([]m.Mode{m.ModeFN, m.ModeFLN, m.ModeCFN}, args.Modes)
	})).Return(nil)

	cmd.SetArgs([]string{"run", "--parallel", "2"})
	err := cmd.Execute()
	require.NoError(t, err)

	mockWorkflow.AssertExpectations(t)
}

func TestRunCmd_WithSharding(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Shard == m.Shard{Index: 1, Total: 3}
	})).Return(nil)

	cmd.SetArgs([]string{"run", "--shard", "1/3"})
	err := cmd.Execute()
	require.NoError(t, err)

	mockWorkflow.AssertExpectations(t)
}

func TestRunCmd_InvalidShard(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	cmd.SetArgs([]string{"run", "--shard", "3/3"})
	err := cmd.Execute()
	require.Error(t, err)
}

func TestRunCmd_PatternsTiersAndModes(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return len(args.Patterns) == 2 &&
			args.Patterns[0] == "black/*" &&
			args.Patterns[1] == "tqdm/3" &&
			args.Samples == 5 &&
			args.Resume &&
			assert.ObjectsAreEqual([]m.Mode{m.ModeFLN, m.ModeInstruction, m.ModeInstructionMask}, args.Modes)
	})).Return(nil)

	cmd.SetArgs([]string{
		"run", "--tier", "fln", "--mode", "Instruction,InstructionMask,FLN",
		"-n", "5", "--resume", "black/*", "tqdm/3",
	})
	err := cmd.Execute()
	require.NoError(t, err)

	mockWorkflow.AssertExpectations(t)
}

func TestRunCmd_ModeAloneSkipsDefaultTiers(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return assert.ObjectsAreEqual([]m.Mode{m.ModeInstruction}, args.Modes)
	})).Return(nil)

	cmd.SetArgs([]string{"run", "--mode", "Instruction"})
	err := cmd.Execute()
	require.NoError(t, err)

	mockWorkflow.AssertExpectations(t)
}

func TestRunCmd_UnknownTier(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	cmd.SetArgs([]string{"run", "--tier", "XL"})
	err := cmd.Execute()
	require.ErrorContains(t, err, "unknown mode")
}

func TestRunCmd_VerboseFlag(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newRunCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Verbose
	})).Return(nil)

	cmd.SetArgs([]string{"-v", "run"})
	err := cmd.Execute()
	require.NoError(t, err)

	mockWorkflow.AssertExpectations(t)
}

func TestNewRunCmd(t *testing.T) {
	cmd := newRunCmd()

	assert.Equal(t, "run [bug-patterns...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.Equal(t, runLongDescription, cmd.Long)

	for _, name := range []string{"parallel", "samples", "tier", "mode", "shard", "resume"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestSelectedModes(t *testing.T) {
	modes, err := selectedModes([]string{"FN", "", "cfn"}, []string{"InstructionLabel", "FN"})
	require.NoError(t, err)
	assert.Equal(t, []m.Mode{m.ModeFN, m.ModeCFN, m.ModeInstructionLabel}, modes)

	modes, err = selectedModes(nil, []string{"Instruction"})
	require.NoError(t, err)
	assert.Equal(t, []m.Mode{m.ModeInstruction}, modes)

	_, err = selectedModes(nil, nil)
	require.Error(t, err)

	_, err = selectedModes([]string{"FNX"}, nil)
	require.Error(t, err)
}
