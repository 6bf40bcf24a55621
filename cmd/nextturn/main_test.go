package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

type nopGateway struct{}

func (nopGateway) CallJSON(context.Context, provider.Request) (provider.Response, error) {
	return provider.Response{}, errors.New("unexpected model call")
}

type testApp struct {
	*app
	out      *bytes.Buffer
	gwOpts   *provider.Options
	gwCalled bool
}

func newTestApp(env map[string]string) *testApp {
	ta := &testApp{app: newApp(), out: &bytes.Buffer{}}
	ta.stdout = ta.out
	ta.logger = zap.NewNop()
	ta.getenv = func(k string) string { return env[k] }
	ta.newGateway = func(opts provider.Options, _ *zap.Logger) (synthesis.Gateway, error) {
		ta.gwCalled = true
		ta.gwOpts = &opts
		return nopGateway{}, nil
	}
	return ta
}

func (ta *testApp) execute(args ...string) error {
	root := ta.rootCmd()
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(c *Config){
		"high above one":    func(c *Config) { c.HighConfidence = 1.2 },
		"low above high":    func(c *Config) { c.LowConfidence = 0.9 },
		"odd predictions":   func(c *Config) { c.MaxPredNums = 3 },
		"too few preds":     func(c *Config) { c.MaxPredNums = 0 },
		"zero concurrency":  func(c *Config) { c.MaxConcurrency = 0 },
		"zero retries":      func(c *Config) { c.Retries = 0 },
		"bad format":        func(c *Config) { c.ResponseFormat = "text" },
		"missing model":     func(c *Config) { c.Model = "" },
		"missing input":     func(c *Config) { c.InPath = "" },
		"negative timeout":  func(c *Config) { c.HTTPTimeout = -time.Second },
		"empty api key env": func(c *Config) { c.APIKeyEnv = "" },
	}
	for name, mutate := range cases {
		c := defaultConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	env := map[string]string{"ZAI_API_KEY": " from-env "}
	getenv := func(k string) string { return env[k] }

	k, err := resolveAPIKey(cfg, getenv)
	require.NoError(t, err)
	require.Equal(t, "from-env", k)

	cfg.APIKey = "from-flag"
	k, err = resolveAPIKey(cfg, getenv)
	require.NoError(t, err)
	require.Equal(t, "from-flag", k)

	cfg = defaultConfig()
	cfg.APIKeyEnv = "OTHER_KEY"
	_, err = resolveAPIKey(cfg, getenv)
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Contains(t, err.Error(), "OTHER_KEY")
}

func TestSynthesize_MissingCredentialExitsTwo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "in.jsonl"), "")
	ta := newTestApp(nil)

	err := ta.execute("synthesize", "--in", in, "--out", filepath.Join(dir, "out.jsonl"))
	require.ErrorIs(t, err, ErrMissingCredential)
	require.Equal(t, 2, exitCode(err))
	require.False(t, ta.gwCalled, "no work may start without a credential")
}

func TestSynthesize_ConfigFileAndFlags(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "in.jsonl"),
		`{"id": 1, "conversation": [{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`+"\n")
	out := filepath.Join(dir, "out", "synth.jsonl")
	cfgPath := writeFile(t, filepath.Join(dir, "nextturn.yaml"), strings.Join([]string{
		"model: from-file",
		"max_concurrency: 3",
		"retries: 5",
		"retry_base_sleep: 2s",
		"response_format: json_schema",
		"api_key_env: MY_KEY",
		"input: /does/not/exist.jsonl",
		"",
	}, "\n"))

	ta := newTestApp(map[string]string{"MY_KEY": "secret"})
	err := ta.execute("synthesize", "--config", cfgPath, "--model", "from-flag", "--in", in, "--out", out)
	require.NoError(t, err)

	require.Equal(t, "from-flag", ta.cfg.Model, "explicit flags win over the file")
	require.Equal(t, in, ta.cfg.InPath)
	require.Equal(t, 3, ta.cfg.MaxConcurrency)
	require.Equal(t, 2*time.Second, ta.cfg.RetryBaseSleep)

	require.NotNil(t, ta.gwOpts)
	require.Equal(t, "secret", ta.gwOpts.APIKey)
	require.Equal(t, "from-flag", ta.gwOpts.Model)
	require.Equal(t, 5, ta.gwOpts.Retries)
	require.Equal(t, provider.FormatJSONSchema, ta.gwOpts.ResponseFormat)

	require.Contains(t, ta.out.String(), "samples=1 written=0 skipped=1 failed=0")
	_, err = os.Stat(out)
	require.NoError(t, err)
}

func TestSynthesize_BadConfigExitsTwo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeFile(t, filepath.Join(dir, "bad.yaml"), "modle: typo\n")

	err := newTestApp(map[string]string{"ZAI_API_KEY": "k"}).execute("synthesize", "--config", cfgPath)
	require.Error(t, err)
	require.Equal(t, 2, exitCode(err))

	err = newTestApp(map[string]string{"ZAI_API_KEY": "k"}).execute("synthesize", "--max-pred-nums", "3")
	require.Equal(t, 2, exitCode(err))

	err = newTestApp(nil).execute("synthesize", "--concurrency", "many")
	require.Equal(t, 2, exitCode(err))
}

func TestUsageAndPostprocessCommands(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	synth := filepath.Join(dir, "synth.jsonl")
	sink, err := fileutils.OpenJSONLAppender(synth)
	require.NoError(t, err)
	view := synthesis.View{Reasoning: "r", Predictions: []string{"p1"}}
	branch := synthesis.Branch{
		IntentTree:              synthesis.IntentTree{"Travel": map[string]any{"city": "Kyoto"}},
		UtteranceCategoryReason: synthesis.CategoryReason{Category: synthesis.CategoryQuestion, Reasoning: "q"},
		InsightReason:           synthesis.InsightReason{MiningView: view, ExploreView: view},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, sink.Append(synthesis.Record{
			SynthesisItem: synthesis.SynthesisItem{SampleID: "s", Context: []synthesis.Message{{Role: "user", Content: "hi"}}, NegativeLabel: []string{}},
			Usage:         synthesis.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
			Chosen:        branch,
			Rejected:      branch,
		}))
	}
	require.NoError(t, sink.Close())

	ta := newTestApp(nil)
	require.NoError(t, ta.execute("usage", synth))
	require.Equal(t, "records=2 prompt_tokens=6 completion_tokens=4 total_tokens=10\n", ta.out.String())

	out := filepath.Join(dir, "processed", "sft.json")
	ta = newTestApp(nil)
	require.NoError(t, ta.execute("postprocess", "--in", synth, "--out", out, "--mode", "sft"))
	require.Contains(t, ta.out.String(), "samples_written=2 mode=sft")
	_, err = os.Stat(out)
	require.NoError(t, err)

	err = newTestApp(nil).execute("postprocess", "--in", synth, "--out", out, "--mode", "dpo")
	require.Equal(t, 2, exitCode(err))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	l, err := newLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, l)
	_, err = newLogger("chatty")
	require.Error(t, err)
}
