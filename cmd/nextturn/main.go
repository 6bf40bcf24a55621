package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/prompts"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, ErrMissingCredential) || errors.Is(err, errInvalidConfig) {
		return 2
	}
	return 1
}

// app carries the process-level seams the commands depend on.
type app struct {
	cfg        Config
	configPath string
	getenv     func(string) string
	stdout     io.Writer
	newGateway func(provider.Options, *zap.Logger) (synthesis.Gateway, error)
	logger     *zap.Logger
}

func newApp() *app {
	return &app{
		cfg:    defaultConfig(),
		getenv: os.Getenv,
		stdout: os.Stdout,
		newGateway: func(opts provider.Options, logger *zap.Logger) (synthesis.Gateway, error) {
			return provider.NewGateway(opts, logger)
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nextturn",
		Short:         "Synthesize next-utterance prediction training data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	})

	root.AddCommand(a.synthesizeCmd(), a.postprocessCmd(), a.usageCmd())
	return root
}

func (a *app) synthesizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Run the synthesis pipeline over a JSONL file of conversations",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				if err := applyConfigFile(cmd.Flags(), a.configPath, &a.cfg); err != nil {
					return fmt.Errorf("%w: %v", errInvalidConfig, err)
				}
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("%w: %v", errInvalidConfig, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSynthesize(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&a.configPath, "config", "", "Optional YAML config file; explicit flags win")
	bindSynthesizeFlags(cmd.Flags(), &a.cfg)
	return cmd
}

func (a *app) runSynthesize(ctx context.Context) error {
	apiKey, err := resolveAPIKey(a.cfg, a.getenv)
	if err != nil {
		return err
	}
	logger, err := a.buildLogger()
	if err != nil {
		return err
	}

	catalog := prompts.Default()
	if a.cfg.PromptsFile != "" {
		if catalog, err = catalog.LoadOverrides(a.cfg.PromptsFile); err != nil {
			return fmt.Errorf("%w: %v", errInvalidConfig, err)
		}
	}
	set, err := catalog.Compile()
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidConfig, err)
	}

	gw, err := a.newGateway(provider.Options{
		BaseURL:        a.cfg.BaseURL,
		APIKey:         apiKey,
		Model:          a.cfg.Model,
		Retries:        a.cfg.Retries,
		RetryBaseSleep: a.cfg.RetryBaseSleep,
		ResponseFormat: a.cfg.ResponseFormat,
		HTTPTimeout:    a.cfg.HTTPTimeout,
	}, logger)
	if err != nil {
		return err
	}

	pipeline := synthesis.NewPipeline(gw, set, synthesis.Options{
		HighConfidence: a.cfg.HighConfidence,
		LowConfidence:  a.cfg.LowConfidence,
		MaxPredNums:    a.cfg.MaxPredNums,
	}, logger)
	runner := synthesis.NewRunner(pipeline, synthesis.RunnerOptions{
		MaxConcurrency: a.cfg.MaxConcurrency,
		ProgressEvery:  a.cfg.ProgressEvery,
	}, logger)

	sum, err := runner.RunFile(ctx, a.cfg.InPath, a.cfg.OutPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "run_id=%s samples=%d written=%d skipped=%d failed=%d prompt_tokens=%d completion_tokens=%d total_tokens=%d out=%s\n",
		sum.RunID, sum.Total, sum.Written, sum.Skipped, sum.Failed,
		sum.Usage.PromptTokens, sum.Usage.CompletionTokens, sum.Usage.TotalTokens, a.cfg.OutPath)
	return nil
}

func (a *app) postprocessCmd() *cobra.Command {
	var in, out, mode, promptsFile string
	cmd := &cobra.Command{
		Use:   "postprocess",
		Short: "Convert synthesized records into SFT or preference JSON",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if in == "" || out == "" {
				return fmt.Errorf("%w: --in and --out are required", errInvalidConfig)
			}
			switch mode {
			case synthesis.ModeSFT, synthesis.ModePreference:
				return nil
			}
			return fmt.Errorf("%w: --mode must be %s or %s", errInvalidConfig, synthesis.ModeSFT, synthesis.ModePreference)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := a.buildLogger()
			if err != nil {
				return err
			}
			catalog := prompts.Default()
			if promptsFile != "" {
				if catalog, err = catalog.LoadOverrides(promptsFile); err != nil {
					return fmt.Errorf("%w: %v", errInvalidConfig, err)
				}
			}
			set, err := catalog.Compile()
			if err != nil {
				return fmt.Errorf("%w: %v", errInvalidConfig, err)
			}

			n, err := synthesis.NewExporter(set, logger).ExportFile(in, out, mode)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "samples_written=%d mode=%s out=%s\n", n, mode, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "data/synthesized_raw/LMSYS.jsonl", "Synthesized JSONL input")
	cmd.Flags().StringVar(&out, "out", "data/processed/LMSYS_pref.json", "Output JSON file")
	cmd.Flags().StringVar(&mode, "mode", synthesis.ModePreference, "sft or pref")
	cmd.Flags().StringVar(&promptsFile, "prompts", "", "Optional YAML file overriding prompt templates by key")
	return cmd
}

func (a *app) usageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage <synthesized.jsonl>",
		Short: "Total the token usage recorded in a synthesized JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, lines, err := synthesis.SumUsageFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "records=%d prompt_tokens=%d completion_tokens=%d total_tokens=%d\n",
				lines, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
			return nil
		},
	}
}

func (a *app) buildLogger() (*zap.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	logger, err := newLogger(a.cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidConfig, err)
	}
	a.logger = logger
	return logger, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	config := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	return config.Build()
}
