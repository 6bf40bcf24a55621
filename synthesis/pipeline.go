package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/prompts"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

const (
	TierHigh = "high"
	TierMid  = "mid"
	TierLow  = "low"
)

// Gateway is the model call the pipeline depends on. *provider.Gateway satisfies it.
type Gateway interface {
	CallJSON(ctx context.Context, req provider.Request) (provider.Response, error)
}

type Options struct {
	HighConfidence float64
	LowConfidence  float64
	MaxPredNums    int
}

func DefaultOptions() Options {
	return Options{HighConfidence: 0.8, LowConfidence: 0.3, MaxPredNums: 4}
}

// Tier buckets a top similarity score against the confidence thresholds.
func (o Options) Tier(topSim float64) string {
	switch {
	case topSim >= o.HighConfidence:
		return TierHigh
	case topSim >= o.LowConfidence:
		return TierMid
	default:
		return TierLow
	}
}

// Pipeline turns one SynthesisItem into a Record through a fixed chain of dependent model calls.
// A Pipeline holds no per-item state and may be shared by any number of goroutines.
type Pipeline struct {
	gw      Gateway
	prompts *prompts.Set
	opts    Options
	logger  *zap.Logger
}

func NewPipeline(gw Gateway, set *prompts.Set, opts Options, logger *zap.Logger) *Pipeline {
	if set == nil {
		set = prompts.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{gw: gw, prompts: set, opts: opts, logger: logger}
}

// itemRun is the state of one Process call.
type itemRun struct {
	p       *Pipeline
	item    SynthesisItem
	history string
	usage   TokenUsage
	logger  *zap.Logger
	rng     *rand.Rand
}

// stageCall is one rendered model call plus its decoder.
type stageCall[T any] struct {
	stage  string
	system string
	user   string
	vars   map[string]any
	schema map[string]interface{}
	decode func(json.RawMessage) (T, error)
}

func runStage[T any](ctx context.Context, r *itemRun, c stageCall[T]) (T, error) {
	var zero T
	system, err := r.p.prompts.Render(c.system, c.vars)
	if err != nil {
		return zero, &StageError{Stage: c.stage, Err: err}
	}
	user, err := r.p.prompts.Render(c.user, c.vars)
	if err != nil {
		return zero, &StageError{Stage: c.stage, Err: err}
	}

	resp, err := r.p.gw.CallJSON(ctx, provider.Request{Name: c.stage, System: system, User: user, Schema: c.schema})
	if err != nil {
		return zero, &StageError{Stage: c.stage, Err: err}
	}
	r.usage = r.usage.Add(usageOf(resp))

	out, err := c.decode(resp.Raw)
	if err != nil {
		return zero, &StageError{Stage: c.stage, Err: err}
	}
	r.logger.Debug("stage done", zap.String("stage", c.stage), zap.Int64("total_tokens", resp.TotalTokens))
	return out, nil
}

// Process runs every stage for item and assembles the record. Any stage failure aborts the item.
func (p *Pipeline) Process(ctx context.Context, item SynthesisItem) (Record, error) {
	r := &itemRun{
		p:       p,
		item:    item,
		history: RenderHistory(item.Context),
		logger:  p.logger.With(zap.String("sample_id", string(item.SampleID))),
		rng:     newSampleRand(item.SampleID, streamShuffle),
	}
	if r.item.NegativeLabel == nil {
		r.item.NegativeLabel = []string{}
	}
	rec := Record{SynthesisItem: r.item, ChatHistory: r.history}

	tree, err := runStage(ctx, r, stageCall[IntentTree]{
		stage:  StageIntentTree,
		system: prompts.IntentSystem,
		user:   prompts.IntentUser,
		vars:   map[string]any{"chat_history": r.history},
		decode: decodeIntentTree,
	})
	if err != nil {
		return Record{}, err
	}
	rec.IntentTree = tree
	treeJSON := compactJSON(tree)

	// The label is withheld here; the category guess is made from history alone.
	reasons, err := runStage(ctx, r, stageCall[[]CategoryReason]{
		stage:  StageCategoryReason,
		system: prompts.CategorySystem,
		user:   prompts.CategoryUser,
		vars:   map[string]any{"chat_history": r.history},
		decode: decodeCategoryReasons,
	})
	if err != nil {
		return Record{}, err
	}
	rec.UtteranceCategoryReason = reasons

	gt, err := runStage(ctx, r, stageCall[CategoryGT]{
		stage:  StageCategoryGT,
		system: prompts.CategoryGTSystem,
		user:   prompts.CategoryGTUser,
		vars: map[string]any{
			"assistant_message": lastContent(item.Context),
			"user_message":      item.Label,
		},
		schema: categoryGTSchema,
		decode: decodeCategoryGT,
	})
	if err != nil {
		return Record{}, err
	}
	rec.UtteranceCategoryGT = gt
	category := gt.PredictedCategory

	insight, err := runStage(ctx, r, stageCall[InsightReason]{
		stage:  StageInsightReason,
		system: prompts.InsightSystem,
		user:   prompts.InsightUser,
		vars: map[string]any{
			"chat_history": r.history,
			"intent_tree":  treeJSON,
			"category":     category,
		},
		schema: insightReasonSchema,
		decode: decodeInsightReason,
	})
	if err != nil {
		return Record{}, err
	}
	rec.InsightReason = insight

	predictions := insight.Predictions()
	if len(predictions) != p.opts.MaxPredNums {
		r.logger.Warn("unexpected prediction count",
			zap.Int("got", len(predictions)),
			zap.Int("want", p.opts.MaxPredNums),
		)
	}

	evals, err := runStage(ctx, r, stageCall[[]Evaluation]{
		stage:  StageEvaluate,
		system: prompts.EvaluateSystem,
		user:   prompts.EvaluateUser,
		vars: map[string]any{
			"context":       r.history,
			"label":         item.Label,
			"predict_input": numberPredictions(predictions),
		},
		decode: decodeEvaluations,
	})
	if err != nil {
		return Record{}, err
	}
	rec.EvaluateReason = evals
	rec.TopSim = TopSim(evals)

	gtPath, err := runStage(ctx, r, stageCall[GTInsightPath]{
		stage:  StageGTInsightPath,
		system: prompts.GTPathSystem,
		user:   prompts.GTPathUser,
		vars: map[string]any{
			"context":     r.history,
			"intent_tree": treeJSON,
			"label":       item.Label,
		},
		schema: gtInsightPathSchema,
		decode: decodeGTInsightPath,
	})
	if err != nil {
		return Record{}, err
	}
	rec.GTInsightPath = gtPath
	if len(gtPath.Path) != 2 {
		r.logger.Warn("unexpected gt path length", zap.Int("got", len(gtPath.Path)))
	}

	catRecord, ok := categoryRecord(reasons, category)
	if !ok {
		return Record{}, &StageError{
			Stage: StageBranch,
			Err:   fmt.Errorf("no %s record for working category %s", StageCategoryReason, category),
		}
	}

	tier := p.opts.Tier(rec.TopSim)
	r.logger.Info("branching", zap.String("tier", tier), zap.Float64("top_sim", rec.TopSim))

	b := branchInput{tree: tree, treeJSON: treeJSON, category: catRecord, original: insight, gt: gtPath}
	switch tier {
	case TierHigh:
		rec.Chosen = Branch{IntentTree: tree, UtteranceCategoryReason: catRecord, InsightReason: insight}
		rec.Rejected, err = r.constructNegative(ctx, b, gtPath.Path[0])
		if err != nil {
			return Record{}, err
		}

	case TierMid, TierLow:
		canonical := gtPath.Path[0]
		// Shuffled in place: the stored gt_insight_path shows the order the reviser saw.
		r.rng.Shuffle(len(gtPath.Path), func(i, j int) {
			gtPath.Path[i], gtPath.Path[j] = gtPath.Path[j], gtPath.Path[i]
		})
		revised, err := r.revise(ctx, StageRevise, b, insight.view(gtPath.Insight).Reasoning, gtPath.Path)
		if err != nil {
			return Record{}, err
		}
		rec.RevisedInsightReason = &revised
		rec.Chosen = Branch{
			IntentTree:              tree,
			UtteranceCategoryReason: catRecord,
			InsightReason:           insight.withView(gtPath.Insight, View{Reasoning: revised.Revised, Predictions: revised.Predictions}),
		}

		if tier == TierMid {
			rec.Rejected, err = r.constructNegative(ctx, b, canonical)
			if err != nil {
				return Record{}, err
			}
		} else {
			rec.Rejected = Branch{IntentTree: tree, UtteranceCategoryReason: catRecord, InsightReason: insight}
		}
	}

	rec.Usage = r.usage
	return rec, nil
}

// branchInput is what both chosen and rejected construction need from the earlier stages.
type branchInput struct {
	tree     IntentTree
	treeJSON string
	category CategoryReason
	original InsightReason
	gt       GTInsightPath
}

var viewWording = strings.NewReplacer(
	"mining path", "mining view",
	"exploration path", "exploration view",
)

// revise rewrites the reasoning of the ground-truth view under path guidance.
func (r *itemRun) revise(ctx context.Context, stage string, b branchInput, reasoning string, path []PathEdge) (ReviseResult, error) {
	system, user := prompts.ExploreReviseSystem, prompts.ExploreReviseUser
	if b.gt.Insight == InsightMining {
		system, user = prompts.MiningReviseSystem, prompts.MiningReviseUser
	}
	res, err := runStage(ctx, r, stageCall[ReviseResult]{
		stage:  stage,
		system: system,
		user:   user,
		vars: map[string]any{
			"context":           r.history,
			"intent_tree":       b.treeJSON,
			"category":          b.category.Category,
			"predict_reasoning": reasoning,
			"path":              compactJSON(path),
		},
		schema: reviseSchema,
		decode: decodeRevise,
	})
	if err != nil {
		return ReviseResult{}, err
	}

	res.Revised = viewWording.Replace(res.Revised)
	if half := r.p.opts.MaxPredNums / 2; len(res.Predictions) > half {
		res.Predictions = res.Predictions[:half]
	}
	return res, nil
}

func categoryRecord(reasons []CategoryReason, category string) (CategoryReason, bool) {
	for _, r := range reasons {
		if r.Category == category {
			return r, true
		}
	}
	return CategoryReason{}, false
}

func lastContent(msgs []Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func numberPredictions(preds []string) string {
	var b strings.Builder
	for i, p := range preds {
		fmt.Fprintf(&b, "Predictive Input %d: %s\n", i+1, p)
	}
	return b.String()
}

// compactJSON renders v for prompt interpolation. Values here are plain decoded JSON, so
// encoding cannot fail.
func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// IsSkip reports whether err means the sample was intentionally not synthesized.
func IsSkip(err error) bool {
	return errors.Is(err, ErrTooShort)
}
