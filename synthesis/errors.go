package synthesis

import "fmt"

const (
	StageIntentTree     = "intent_tree"
	StageCategoryReason = "utterance_category_reason"
	StageCategoryGT     = "utterance_category_gt"
	StageInsightReason  = "insight_reason"
	StageEvaluate       = "evaluate_reason"
	StageGTInsightPath  = "gt_insight_path"
	StageRevise         = "revise"
	StageIncorrectPath  = "incorrect_path"
	StageNegativeRevise = "negative_revise"
	StageBranch         = "branch"
)

// StageError reports which pipeline stage an item failed in. It wraps both decoding failures
// and gateway exhaustion.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
