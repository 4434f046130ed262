package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vinitshetty/phototagger/internal/config"
	"github.com/vinitshetty/phototagger/internal/home"
	"github.com/vinitshetty/phototagger/internal/logging"
	"github.com/vinitshetty/phototagger/internal/output"
	"github.com/vinitshetty/phototagger/internal/providers"
	"github.com/vinitshetty/phototagger/internal/runner"
	"github.com/vinitshetty/phototagger/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
	logJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "phototagger",
	Short: "Resumable AI tagging for large photo libraries",
	Long: `phototagger walks a photo tree, asks a vision model for descriptive tags,
and writes them back into each image's metadata.

Progress is kept in a work catalog and a completion ledger, so a run can be
killed at any point and resumed without repeating finished photos:
  - Bounded batches (batch_limit) with rate-limit pacing
  - Backlog or incremental scanning
  - Gemini, Mistral or any OpenAI-compatible provider
  - EXIF (JPEG) and text chunk (PNG) write-back`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.phototagger/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "phototagger home directory (default: ~/.phototagger)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "table", "output format: table, yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level override: debug, info, warn, error",
	)
	rootCmd.PersistentFlags().BoolVar(
		&logJSON, "log-json", false, "write console logs as JSON",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return output.SetFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// app is the per-command environment: config, logger and state location.
type app struct {
	home    *home.Dir
	manager *config.Manager
	cfg     *config.Config
	logger  *slog.Logger
	logFile io.Closer
}

func loadApp(cmd *cobra.Command) (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if err := mgr.Set("log.level", logLevel); err != nil {
			return nil, err
		}
	}
	cfg := mgr.Get()

	errLog := cfg.Log.File
	if errLog == "" {
		errLog = h.LogPath()
	}
	logger, closer, err := logging.New(logging.Options{
		Level:     cfg.Log.Level,
		JSON:      logJSON,
		Console:   cmd.ErrOrStderr(),
		ErrorFile: errLog,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if f := mgr.ConfigFile(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	return &app{home: h, manager: mgr, cfg: cfg, logger: logger, logFile: closer}, nil
}

func (a *app) Close() error {
	return a.logFile.Close()
}

func (a *app) stateDir() string {
	if a.cfg.StateDir != "" {
		return a.cfg.StateDir
	}
	return a.home.StatePath()
}

// newRunner opens the state for the configured root. withClassifier
// resolves the selected provider, which is fatal when it is unusable.
func (a *app) newRunner(withClassifier bool) (*runner.Runner, *providers.Registry, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	params, err := a.cfg.RunParams()
	if err != nil {
		return nil, nil, err
	}

	opts := runner.Options{
		Params:   params,
		StateDir: a.stateDir(),
		Backend:  a.cfg.StateBackend,
		Logger:   a.logger,
	}

	var registry *providers.Registry
	if withClassifier {
		registry = providers.NewRegistryFromConfig(a.cfg.ProviderConfigs(), a.logger)
		if _, err := registry.Get(a.cfg.Provider); err != nil {
			return nil, nil, fmt.Errorf("provider %q unusable (is its API key set?): %w", a.cfg.Provider, err)
		}
		opts.Classifier = registry.Lookup(a.cfg.Provider)
	}

	r, err := runner.New(opts)
	if err != nil {
		return nil, nil, err
	}
	return r, registry, nil
}
