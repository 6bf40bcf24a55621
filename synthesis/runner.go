package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
)

// Processor synthesizes one item. *Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, item SynthesisItem) (Record, error)
}

// Sink receives finished records. It must be safe for concurrent use.
type Sink interface {
	Append(v any) error
}

type RunnerOptions struct {
	MaxConcurrency int
	ProgressEvery  int
}

// Summary counts the outcome of one batch.
type Summary struct {
	RunID   string
	Total   int
	Written int
	Skipped int
	Failed  int
	Usage   TokenUsage
}

type Runner struct {
	proc   Processor
	opts   RunnerOptions
	logger *zap.Logger
}

func NewRunner(proc Processor, opts RunnerOptions, logger *zap.Logger) *Runner {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{proc: proc, opts: opts, logger: logger}
}

type runCounters struct {
	done    atomic.Int64
	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Run synthesizes every sample with at most MaxConcurrency in flight. A sample that is skipped
// or fails is logged and counted; only a sink error or cancellation stops the batch.
func (r *Runner) Run(ctx context.Context, samples []Conversation, sink Sink) (Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.Int("samples", len(samples)), zap.Int("max_concurrency", r.opts.MaxConcurrency))

	var c runCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrency)

	for _, s := range samples {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := r.one(gctx, logger, s, sink, &c)
			if done := c.done.Add(1); r.opts.ProgressEvery > 0 && done%int64(r.opts.ProgressEvery) == 0 {
				logger.Info("progress", zap.Int64("done", done), zap.Int("total", len(samples)))
			}
			return err
		})
	}
	err := g.Wait()

	sum := Summary{
		RunID:   runID,
		Total:   len(samples),
		Written: int(c.written.Load()),
		Skipped: int(c.skipped.Load()),
		Failed:  int(c.failed.Load()),
	}
	logger.Info("run finished",
		zap.Int64("done", c.done.Load()),
		zap.Int("total", sum.Total),
		zap.Int("written", sum.Written),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	if err != nil {
		return sum, err
	}
	return sum, ctx.Err()
}

func (r *Runner) one(ctx context.Context, logger *zap.Logger, conv Conversation, sink Sink, c *runCounters) (err error) {
	logger = logger.With(zap.String("sample_id", string(conv.ID)))
	defer func() {
		if p := recover(); p != nil {
			c.failed.Add(1)
			logger.Error("sample panicked", zap.Any("panic", p))
			err = nil
		}
	}()

	item, round, selErr := SelectItem(conv)
	if selErr != nil {
		c.skipped.Add(1)
		logger.Info("sample skipped", zap.Error(selErr))
		return nil
	}
	logger.Debug("sample selected", zap.Int("selected_round", round), zap.Int("negatives", len(item.NegativeLabel)))

	rec, procErr := r.proc.Process(ctx, item)
	if procErr != nil {
		c.failed.Add(1)
		stage := ""
		var se *StageError
		if errors.As(procErr, &se) {
			stage = se.Stage
		}
		logger.Error("sample failed", zap.String("stage", stage), zap.Error(procErr))
		return nil
	}

	if err := sink.Append(rec); err != nil {
		return fmt.Errorf("write record %s: %w", conv.ID, err)
	}
	c.written.Add(1)
	return nil
}

// RunFile reads conversations from in, appends records to out and totals the usage of out.
// The usage total covers every line in out, including ones from earlier runs.
func (r *Runner) RunFile(ctx context.Context, in, out string) (Summary, error) {
	samples, err := fileutils.ReadJSONL[Conversation](in)
	if err != nil {
		return Summary{}, err
	}
	app, err := fileutils.OpenJSONLAppender(out)
	if err != nil {
		return Summary{}, err
	}

	sum, runErr := r.Run(ctx, samples, app)
	if err := app.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}

	usage, lines, err := SumUsageFile(out)
	if err != nil {
		if runErr == nil {
			runErr = err
		}
		return sum, runErr
	}
	sum.Usage = usage
	r.logger.Info("total usage",
		zap.String("run_id", sum.RunID),
		zap.Int("records", lines),
		zap.Int64("prompt_tokens", usage.PromptTokens),
		zap.Int64("completion_tokens", usage.CompletionTokens),
		zap.Int64("total_tokens", usage.TotalTokens),
	)
	return sum, runErr
}
