package synthesis

import (
	"context"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/prompts"
)

// constructNegative builds a rejected branch: the model is asked for a wrong continuation of
// the intent tree, the ground-truth view is re-reasoned along it, and the other view is kept.
func (r *itemRun) constructNegative(ctx context.Context, b branchInput, canonical PathEdge) (Branch, error) {
	vars := map[string]any{
		"intent_tree": b.treeJSON,
		"gt_insight":  b.gt.Insight,
		"gt_path":     compactJSON(canonical),
	}
	system, user := prompts.IncorrectPathSystem, prompts.IncorrectPathUser
	if len(r.item.NegativeLabel) > 0 {
		system, user = prompts.IncorrectPathRefSystem, prompts.IncorrectPathRefUser
		vars["error_user_input"] = compactJSON(r.item.NegativeLabel)
	}

	wrong, err := runStage(ctx, r, stageCall[IncorrectPath]{
		stage:  StageIncorrectPath,
		system: system,
		user:   user,
		vars:   vars,
		schema: incorrectPathSchema,
		decode: decodeIncorrectPath,
	})
	if err != nil {
		return Branch{}, err
	}

	revised, err := r.revise(ctx, StageNegativeRevise, b, b.original.view(b.gt.Insight).Reasoning, wrong.Path)
	if err != nil {
		return Branch{}, err
	}

	half := r.p.opts.MaxPredNums / 2
	kept := InsightReason{
		MiningView:  limitView(b.original.MiningView, half),
		ExploreView: limitView(b.original.ExploreView, half),
	}
	return Branch{
		IntentTree:              b.tree,
		UtteranceCategoryReason: b.category,
		InsightReason:           kept.withView(b.gt.Insight, View{Reasoning: revised.Revised, Predictions: revised.Predictions}),
		IncorrectPath:           wrong.Path,
	}, nil
}

// limitView keeps at most n predictions of v.
func limitView(v View, n int) View {
	if len(v.Predictions) > n {
		v.Predictions = append([]string(nil), v.Predictions[:n]...)
	}
	return v
}
