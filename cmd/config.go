package cmd

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"fixbench.dev/pkg/fixbench/internal/adapter"
	"fixbench.dev/pkg/fixbench/internal/domain"
	m "fixbench.dev/pkg/fixbench/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "fixbench"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	verboseFlagName     = "verbose"
	runParallelFlagName = "parallel"
	runSamplesFlagName  = "samples"
	runTierFlagName     = "tier"
	runModeFlagName     = "mode"
	runShardFlagName    = "shard"
	runResumeFlagName   = "resume"
	scoringMatchFlag    = "match"

	runTiersKey          = "run.tiers"
	runModesKey          = "run.modes"
	runSamplesKey        = "run.samples"
	runParallelConfigKey = "run.parallel"
	runBugsKey           = "run.bugs"

	contextRadiusKey         = "context.radius"
	contextFallbackWindowKey = "context.fallback_window"
	contextMaxCharsKey       = "context.max_chars"
	contextTruncateKey       = "context.truncate"

	modelProviderKey    = "model.provider"
	modelNameKey        = "model.name"
	modelEndpointKey    = "model.endpoint"
	modelCommandKey     = "model.command"
	modelTimeoutKey     = "model.timeout"
	modelRetriesKey     = "model.retries"
	modelConcurrencyKey = "model.concurrency"
	modelMaxTokensKey   = "model.max_tokens"

	promptTemplatesKey = "prompt.templates"
	scoringMatchKey    = "scoring.match"

	benchmarkFormatKey    = "benchmark.format"
	benchmarkRootKey      = "benchmark.root"
	benchmarkCheckoutsKey = "benchmark.checkouts"
	benchmarkVersionKey   = "benchmark.version"
	benchmarkMultiLineKey = "benchmark.multi_line"

	defaultReportsDir   = ".fixbench-reports"
	defaultRunParallel  = 1
	defaultBenchmarkDir = "BugsInPy"
	defaultCheckouts    = "checkouts"
	journalFileName     = "samples.db"

	envPrefix = "FIXBENCH"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".fixbench.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	// A missing or unreadable fixbench.yaml leaves defaults and env in place.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	contextDefaults := domain.DefaultContextOptions()

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)

	viper.SetDefault(runTiersKey, tierNames(m.Tiers))
	viper.SetDefault(runModesKey, []string{})
	viper.SetDefault(runSamplesKey, domain.DefaultSamples)
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(runBugsKey, []string{})

	viper.SetDefault(contextRadiusKey, contextDefaults.Radius)
	viper.SetDefault(contextFallbackWindowKey, contextDefaults.FallbackWindow)
	viper.SetDefault(contextMaxCharsKey, contextDefaults.MaxChars)
	viper.SetDefault(contextTruncateKey, contextDefaults.Truncate)

	viper.SetDefault(modelProviderKey, adapter.ProviderOllama)
	viper.SetDefault(modelNameKey, "")
	viper.SetDefault(modelEndpointKey, "")
	viper.SetDefault(modelCommandKey, []string{})
	viper.SetDefault(modelTimeoutKey, int64(domain.DefaultTimeout.Seconds()))
	viper.SetDefault(modelRetriesKey, domain.DefaultRetries)
	viper.SetDefault(modelConcurrencyKey, 1)
	viper.SetDefault(modelMaxTokensKey, 0)

	viper.SetDefault(promptTemplatesKey, "")
	viper.SetDefault(scoringMatchKey, string(domain.MatchWindow))

	viper.SetDefault(benchmarkFormatKey, adapter.FormatBugsInPy)
	viper.SetDefault(benchmarkRootKey, defaultBenchmarkDir)
	viper.SetDefault(benchmarkCheckoutsKey, defaultCheckouts)
	viper.SetDefault(benchmarkVersionKey, 0)
	viper.SetDefault(benchmarkMultiLineKey, false)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

func tierNames(tiers []m.Tier) []string {
	names := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		names = append(names, string(tier))
	}

	return names
}

// modelTimeout reads model.timeout in seconds.
func modelTimeout() time.Duration {
	seconds := viper.GetInt64(modelTimeoutKey)
	if seconds <= 0 {
		return domain.DefaultTimeout
	}

	return time.Duration(seconds) * time.Second
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
