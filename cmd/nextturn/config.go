package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

var (
	// ErrMissingCredential is returned when no API key is available. The CLI exits with 2.
	ErrMissingCredential = errors.New("missing API credential")

	errInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	APIKey    string `yaml:"-"`
	Model     string `yaml:"model"`

	HighConfidence float64 `yaml:"high_confidence_threshold"`
	LowConfidence  float64 `yaml:"low_confidence_threshold"`
	MaxPredNums    int     `yaml:"max_pred_nums"`

	MaxConcurrency int           `yaml:"max_concurrency"`
	Retries        int           `yaml:"retries"`
	RetryBaseSleep time.Duration `yaml:"retry_base_sleep"`
	ResponseFormat string        `yaml:"response_format"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`

	InPath        string `yaml:"input"`
	OutPath       string `yaml:"output"`
	PromptsFile   string `yaml:"prompts_file"`
	ProgressEvery int    `yaml:"progress_every"`
	LogLevel      string `yaml:"log_level"`
}

func (c Config) Validate() error {
	if c.InPath == "" {
		return errors.New("missing --in")
	}
	if c.OutPath == "" {
		return errors.New("missing --out")
	}
	if c.Model == "" {
		return errors.New("missing --model")
	}
	if c.APIKeyEnv == "" {
		return errors.New("api-key-env must not be empty")
	}
	if c.HighConfidence < 0 || c.HighConfidence > 1 || c.LowConfidence < 0 || c.LowConfidence > 1 {
		return errors.New("confidence thresholds must be within [0,1]")
	}
	if c.LowConfidence > c.HighConfidence {
		return fmt.Errorf("low-confidence %.2f must be <= high-confidence %.2f", c.LowConfidence, c.HighConfidence)
	}
	if c.MaxPredNums < 2 || c.MaxPredNums%2 != 0 {
		return errors.New("max-pred-nums must be an even number >= 2")
	}
	if c.MaxConcurrency < 1 {
		return errors.New("concurrency must be >= 1")
	}
	if c.Retries < 1 {
		return errors.New("retries must be >= 1")
	}
	if c.RetryBaseSleep < 0 || c.HTTPTimeout < 0 {
		return errors.New("durations must be >= 0")
	}
	if c.ProgressEvery < 0 {
		return errors.New("progress-every must be >= 0")
	}
	switch c.ResponseFormat {
	case provider.FormatJSONObject, provider.FormatJSONSchema:
	default:
		return fmt.Errorf("response-format must be %s or %s", provider.FormatJSONObject, provider.FormatJSONSchema)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		BaseURL:        "https://open.bigmodel.cn/api/paas/v4/",
		APIKeyEnv:      "ZAI_API_KEY",
		Model:          "glm-4.6",
		HighConfidence: 0.8,
		LowConfidence:  0.3,
		MaxPredNums:    4,
		MaxConcurrency: 10,
		Retries:        3,
		RetryBaseSleep: time.Second,
		ResponseFormat: provider.FormatJSONObject,
		InPath:         filepath.FromSlash("data/raw/LMSYS.jsonl"),
		OutPath:        filepath.FromSlash("data/synthesized_raw/LMSYS.jsonl"),
		ProgressEvery:  10,
		LogLevel:       "info",
	}
}

func bindSynthesizeFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.InPath, "in", cfg.InPath, "Input JSONL of conversations")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output JSONL of synthesized records (appended)")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "OpenAI-compatible API base URL")
	fs.StringVar(&cfg.APIKeyEnv, "api-key-env", cfg.APIKeyEnv, "Environment variable holding the API key")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides the environment variable)")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model id")
	fs.Float64Var(&cfg.HighConfidence, "high-confidence", cfg.HighConfidence, "Similarity at or above which the model's own predictions are chosen")
	fs.Float64Var(&cfg.LowConfidence, "low-confidence", cfg.LowConfidence, "Similarity below which the original predictions become the rejected branch")
	fs.IntVar(&cfg.MaxPredNums, "max-pred-nums", cfg.MaxPredNums, "Expected number of predictions across both views")
	fs.IntVar(&cfg.MaxConcurrency, "concurrency", cfg.MaxConcurrency, "Max samples in flight")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Attempts per model call")
	fs.DurationVar(&cfg.RetryBaseSleep, "retry-base-sleep", cfg.RetryBaseSleep, "Base sleep between attempts (plus up to 1s jitter)")
	fs.StringVar(&cfg.ResponseFormat, "response-format", cfg.ResponseFormat, "json_object or json_schema")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "Per-request HTTP timeout (0 disables)")
	fs.StringVar(&cfg.PromptsFile, "prompts", cfg.PromptsFile, "Optional YAML file overriding prompt templates by key")
	fs.IntVar(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "Log progress every N samples (0 disables)")
}

// applyConfigFile loads path into cfg while keeping every flag the user set explicitly.
func applyConfigFile(fs *pflag.FlagSet, path string, cfg *Config) error {
	explicit := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

func resolveAPIKey(cfg Config, getenv func(string) string) (string, error) {
	if k := strings.TrimSpace(cfg.APIKey); k != "" {
		return k, nil
	}
	if k := strings.TrimSpace(getenv(cfg.APIKeyEnv)); k != "" {
		return k, nil
	}
	return "", fmt.Errorf("%w: set %s (or pass --api-key)", ErrMissingCredential, cfg.APIKeyEnv)
}
