package synthesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is one role-tagged conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SampleID is a conversation id. Inputs may carry it as a JSON string or number; it is always
// written back as a string.
type SampleID string

func (id *SampleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("sample id: %w", err)
		}
		*id = SampleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("sample id: %w", err)
	}
	*id = SampleID(n.String())
	return nil
}

// Conversation is one input line: a raw multi-turn exchange.
type Conversation struct {
	ID           SampleID  `json:"id"`
	Conversation []Message `json:"conversation"`
}

// SynthesisItem is the held-out split of one conversation.
type SynthesisItem struct {
	SampleID      SampleID  `json:"sample_id"`
	ItemID        int       `json:"item_id"`
	Context       []Message `json:"context"`
	Label         string    `json:"label"`
	NegativeLabel []string  `json:"negative_label"`
}

// IntentTree maps topic -> attribute -> value. Only "is a JSON object" is checked.
type IntentTree map[string]any

const (
	CategoryStatement   = "Statement"
	CategoryQuestion    = "Question"
	CategoryInstruction = "Instruction"
)

var categories = []string{CategoryStatement, CategoryQuestion, CategoryInstruction}

// CategoryReason is one annotated entry of the three-way sentence category guess.
type CategoryReason struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// CategoryGT is the label-aware single category.
type CategoryGT struct {
	Reasoning         string `json:"reasoning"`
	PredictedCategory string `json:"predicted_category"`
}

// View is one prediction perspective (mining or exploration).
type View struct {
	Reasoning   string   `json:"reasoning"`
	Predictions []string `json:"predictions"`
}

type InsightReason struct {
	MiningView  View `json:"mining_view"`
	ExploreView View `json:"explore_view"`
}

// Predictions returns mining predictions followed by exploration predictions.
func (r InsightReason) Predictions() []string {
	out := make([]string, 0, len(r.MiningView.Predictions)+len(r.ExploreView.Predictions))
	out = append(out, r.MiningView.Predictions...)
	return append(out, r.ExploreView.Predictions...)
}

// withView returns a copy of r with the view matching insight replaced.
func (r InsightReason) withView(insight string, v View) InsightReason {
	if insight == InsightMining {
		r.MiningView = v
	} else {
		r.ExploreView = v
	}
	return r
}

func (r InsightReason) view(insight string) View {
	if insight == InsightMining {
		return r.MiningView
	}
	return r.ExploreView
}

// Score is a similarity value. Models sometimes quote numbers, so strings are accepted.
type Score float64

func (s *Score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("similarity %q: %w", str, err)
		}
		*s = Score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	*s = Score(f)
	return nil
}

// Evaluation scores one prediction against the held-out utterance.
type Evaluation struct {
	Input      string `json:"input"`
	Reason     string `json:"reason"`
	Similarity Score  `json:"similarity"`
}

const (
	InsightMining      = "Mining"
	InsightExploration = "Exploration"
)

// PathEdge is one intent-tree edit: an existing topic and the node it extends to.
type PathEdge struct {
	SourceNode string `json:"source_node"`
	TargetNode string `json:"target_node"`
}

type GTInsightPath struct {
	InsightReasoning string     `json:"insight_reasoning"`
	Insight          string     `json:"insight"`
	PathReasoning    string     `json:"path_reasoning"`
	Path             []PathEdge `json:"path"`
}

// ReviseResult is the output of a Mining-Revise or Explore-Revise call.
type ReviseResult struct {
	Thinking    string   `json:"thinking"`
	Revised     string   `json:"revised"`
	Predictions []string `json:"predictions"`
}

// IncorrectPath is the output of the incorrect-path calls used for rejected branches.
type IncorrectPath struct {
	Thinking string     `json:"thinking"`
	Path     []PathEdge `json:"path"`
}

// Branch is one half of a preference pair.
type Branch struct {
	IntentTree              IntentTree     `json:"intent_tree"`
	UtteranceCategoryReason CategoryReason `json:"utterance_category_reason"`
	InsightReason           InsightReason  `json:"insight_reason"`
	IncorrectPath           []PathEdge     `json:"incorrect_path,omitempty"`
}

// Record is one synthesized output line.
type Record struct {
	SynthesisItem

	ChatHistory             string           `json:"chat_history"`
	IntentTree              IntentTree       `json:"intent_tree"`
	UtteranceCategoryReason []CategoryReason `json:"utterance_category_reason"`
	UtteranceCategoryGT     CategoryGT       `json:"utterance_category_gt"`
	InsightReason           InsightReason    `json:"insight_reason"`
	EvaluateReason          []Evaluation     `json:"evaluate_reason"`
	TopSim                  float64          `json:"top_sim"`
	GTInsightPath           GTInsightPath    `json:"gt_insight_path"`
	RevisedInsightReason    *ReviseResult    `json:"revised_insight_reason,omitempty"`
	Usage                   TokenUsage       `json:"usage"`
	Chosen                  Branch           `json:"chosen"`
	Rejected                Branch           `json:"rejected"`
}
