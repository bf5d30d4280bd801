package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	"fixbench.dev/pkg/fixbench/internal/domain"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

// workflowNeeds names the dependencies a command uses. Everything else is
// left out of the workflow so, for example, view works without a benchmark.
type workflowNeeds struct {
	benchmark bool
	model     bool
	journal   bool
	samples   int
	resume    bool
}

// resolveWorkflow returns the substituted workflow, or builds one from the
// configuration. The returned func releases what was opened.
func resolveWorkflow(ctx context.Context, needs workflowNeeds) (domain.Workflow, func(), error) {
	if workflow != nil {
		return workflow, func() {}, nil
	}

	output := viper.GetString(outputFlagName)
	runs := adapter.NewLocalRunStore(m.Path(output))

	var (
		journal adapter.SampleStore
		closers []func() error
	)

	release := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				slog.Warn("Failed to close dependency", "error", err)
			}
		}
	}

	if needs.journal {
		store, err := adapter.OpenBoltSampleStore(m.Path(filepath.Join(output, journalFileName)))
		if err != nil {
			slog.Error("Failed to open sample journal", "output", output, "error", err)

			if adapter.IsJournalBusy(err) {
				return nil, nil, fmt.Errorf("sample journal in %s is used by another process: %w", output, err)
			}

			return nil, nil, fmt.Errorf("open sample journal: %w", err)
		}

		journal = store
		closers = append(closers, store.Close)
	}

	var (
		selector     domain.BugSelector
		locator      domain.BugLocator
		orchestrator domain.Orchestrator
		modelName    string
	)

	if needs.benchmark {
		provider, err := adapter.NewBenchmarkProvider(ctx, fsAdapter, adapter.BenchmarkOptions{
			Format:           viper.GetString(benchmarkFormatKey),
			Root:             m.Path(viper.GetString(benchmarkRootKey)),
			Checkouts:        m.Path(viper.GetString(benchmarkCheckoutsKey)),
			IncludeMultiLine: viper.GetBool(benchmarkMultiLineKey),
		})
		if err != nil {
			release()
			slog.Error("Failed to open benchmark", "error", err)

			return nil, nil, fmt.Errorf("open benchmark: %w", err)
		}

		selector = domain.NewBugSelector(provider)
		locator = domain.NewBugLocator(provider, fsAdapter, viper.GetInt(benchmarkVersionKey))

		orchestrator, modelName, err = buildOrchestrator(ctx, needs, journal)
		if err != nil {
			release()
			return nil, nil, err
		}
	}

	built := domain.NewWorkflow(selector, locator, orchestrator, aggregator, runs, journal, ui, modelName)

	return built, release, nil
}

func buildOrchestrator(ctx context.Context, needs workflowNeeds, journal adapter.SampleStore) (domain.Orchestrator, string, error) {
	templates := domain.DefaultTemplates()

	if path := viper.GetString(promptTemplatesKey); path != "" {
		loaded, err := domain.LoadTemplates(ctx, fsAdapter, m.Path(path))
		if err != nil {
			return nil, "", err
		}

		templates = loaded
	}

	renderer, err := domain.NewPromptRenderer(templates)
	if err != nil {
		return nil, "", err
	}

	policy, err := domain.ParseMatchPolicy(viper.GetString(scoringMatchKey))
	if err != nil {
		return nil, "", err
	}

	builder := domain.NewHeuristicContextBuilder(pythonAdapter, domain.ContextOptions{
		Radius:         viper.GetInt(contextRadiusKey),
		FallbackWindow: viper.GetInt(contextFallbackWindowKey),
		MaxChars:       viper.GetInt(contextMaxCharsKey),
		Truncate:       viper.GetBool(contextTruncateKey),
	})

	var (
		collector domain.SampleCollector
		modelName string
	)

	if needs.model {
		generator, err := adapter.NewGenerator(ctx, adapter.GeneratorOptions{
			Provider:  viper.GetString(modelProviderKey),
			Model:     viper.GetString(modelNameKey),
			Endpoint:  viper.GetString(modelEndpointKey),
			MaxTokens: viper.GetInt(modelMaxTokensKey),
			Command:   viper.GetStringSlice(modelCommandKey),
		})
		if err != nil {
			slog.Error("Failed to create model backend", "provider", viper.GetString(modelProviderKey), "error", err)
			return nil, "", fmt.Errorf("model backend: %w", err)
		}

		limiter := semaphore.NewWeighted(int64(max(1, viper.GetInt(modelConcurrencyKey))))
		collector = domain.NewSampleCollector(generator, limiter, domain.CollectorOptions{
			Retries: viper.GetInt(modelRetriesKey),
			Timeout: modelTimeout(),
		})
		modelName = adapter.GeneratorName(generator)
	}

	orchestrator := domain.NewOrchestrator(builder, renderer, collector, domain.NewCorrectnessScorer(policy), journal,
		domain.OrchestratorOptions{Samples: needs.samples, Resume: needs.resume})

	return orchestrator, modelName, nil
}
