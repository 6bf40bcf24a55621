package synthesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

// Response schemas for strict json_schema mode. Array-shaped and free-form stages have none and
// fall back to plain JSON-object mode.
var (
	categoryGTSchema    = provider.GenerateSchema[CategoryGT]()
	insightReasonSchema = provider.GenerateSchema[InsightReason]()
	gtInsightPathSchema = provider.GenerateSchema[GTInsightPath]()
	reviseSchema        = provider.GenerateSchema[ReviseResult]()
	incorrectPathSchema = provider.GenerateSchema[IncorrectPath]()
)

type missingFields []string

func (m *missingFields) check(name string, present bool) {
	if !present {
		*m = append(*m, name)
	}
}

func (m missingFields) err() error {
	if len(m) == 0 {
		return nil
	}
	return fmt.Errorf("missing required keys: %s", strings.Join(m, ", "))
}

// wrapperKeys are the field names models most often wrap a list in.
var wrapperKeys = []string{"items", "results", "result", "data"}

// unwrapArray returns raw if it is a JSON array. JSON-object mode forces models to wrap lists,
// so for an object a well-known wrapper key wins, then the first array of objects, then the
// first array of anything (in document order).
func unwrapArray(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil
	}
	doc := gjson.ParseBytes(trimmed)
	if !doc.IsObject() {
		return nil, errors.New("expected a JSON array")
	}
	for _, key := range wrapperKeys {
		if v := doc.Get(key); v.IsArray() {
			return json.RawMessage(v.Raw), nil
		}
	}
	var found, objects string
	doc.ForEach(func(_, value gjson.Result) bool {
		if !value.IsArray() {
			return true
		}
		if found == "" {
			found = value.Raw
		}
		if value.Get("0").IsObject() {
			objects = value.Raw
			return false
		}
		return true
	})
	if objects != "" {
		return json.RawMessage(objects), nil
	}
	if found == "" {
		return nil, errors.New("expected a JSON array or an object wrapping one")
	}
	return json.RawMessage(found), nil
}

func decodeIntentTree(raw json.RawMessage) (IntentTree, error) {
	if !gjson.ParseBytes(raw).IsObject() {
		return nil, errors.New("intent tree is not a JSON object")
	}
	var tree IntentTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal intent tree: %w", err)
	}
	return tree, nil
}

// canonicalCategory maps a model-written category onto Statement, Question or Instruction.
func canonicalCategory(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(s, c) {
			return c, true
		}
	}
	return "", false
}

type wireCategoryReason struct {
	Category  *string `json:"category"`
	Reasoning *string `json:"reasoning"`
}

func decodeCategoryReasons(raw json.RawMessage) ([]CategoryReason, error) {
	arr, err := unwrapArray(raw)
	if err != nil {
		return nil, err
	}
	var wire []wireCategoryReason
	if err := json.Unmarshal(arr, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal category reasons: %w", err)
	}
	if len(wire) != len(categories) {
		return nil, fmt.Errorf("want %d category records, got %d", len(categories), len(wire))
	}

	out := make([]CategoryReason, 0, len(wire))
	seen := make(map[string]bool, len(wire))
	for i, w := range wire {
		var missing missingFields
		missing.check("category", w.Category != nil)
		missing.check("reasoning", w.Reasoning != nil)
		if err := missing.err(); err != nil {
			return nil, fmt.Errorf("category record %d: %w", i, err)
		}
		c, ok := canonicalCategory(*w.Category)
		if !ok {
			return nil, fmt.Errorf("category record %d: unknown category %q", i, *w.Category)
		}
		if seen[c] {
			return nil, fmt.Errorf("category %s appears more than once", c)
		}
		seen[c] = true
		out = append(out, CategoryReason{Category: c, Reasoning: *w.Reasoning})
	}
	return out, nil
}

func decodeCategoryGT(raw json.RawMessage) (CategoryGT, error) {
	var wire struct {
		Reasoning         *string `json:"reasoning"`
		PredictedCategory *string `json:"predicted_category"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return CategoryGT{}, fmt.Errorf("unmarshal category gt: %w", err)
	}
	var missing missingFields
	missing.check("reasoning", wire.Reasoning != nil)
	missing.check("predicted_category", wire.PredictedCategory != nil)
	if err := missing.err(); err != nil {
		return CategoryGT{}, err
	}
	c, ok := canonicalCategory(*wire.PredictedCategory)
	if !ok {
		return CategoryGT{}, fmt.Errorf("unknown predicted_category %q", *wire.PredictedCategory)
	}
	return CategoryGT{Reasoning: *wire.Reasoning, PredictedCategory: c}, nil
}

type wireView struct {
	Reasoning   *string  `json:"reasoning"`
	Predictions []string `json:"predictions"`
}

func (w *wireView) view(name string) (View, error) {
	if w == nil {
		return View{}, fmt.Errorf("missing required keys: %s", name)
	}
	var missing missingFields
	missing.check(name+".reasoning", w.Reasoning != nil)
	missing.check(name+".predictions", w.Predictions != nil)
	if err := missing.err(); err != nil {
		return View{}, err
	}
	return View{Reasoning: *w.Reasoning, Predictions: w.Predictions}, nil
}

func decodeInsightReason(raw json.RawMessage) (InsightReason, error) {
	var wire struct {
		MiningView  *wireView `json:"mining_view"`
		ExploreView *wireView `json:"explore_view"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return InsightReason{}, fmt.Errorf("unmarshal insight reason: %w", err)
	}
	mining, err := wire.MiningView.view("mining_view")
	if err != nil {
		return InsightReason{}, err
	}
	explore, err := wire.ExploreView.view("explore_view")
	if err != nil {
		return InsightReason{}, err
	}
	return InsightReason{MiningView: mining, ExploreView: explore}, nil
}

func decodeEvaluations(raw json.RawMessage) ([]Evaluation, error) {
	arr, err := unwrapArray(raw)
	if err != nil {
		return nil, err
	}
	var wire []struct {
		Input      string `json:"input"`
		Reason     string `json:"reason"`
		Similarity *Score `json:"similarity"`
	}
	if err := json.Unmarshal(arr, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal evaluations: %w", err)
	}
	out := make([]Evaluation, 0, len(wire))
	for i, w := range wire {
		if w.Similarity == nil {
			return nil, fmt.Errorf("evaluation %d: missing required keys: similarity", i)
		}
		out = append(out, Evaluation{Input: w.Input, Reason: w.Reason, Similarity: *w.Similarity})
	}
	return out, nil
}

// TopSim is the best similarity of an evaluation, 0 when there is none.
func TopSim(evals []Evaluation) float64 {
	top := 0.0
	for _, e := range evals {
		if s := float64(e.Similarity); s > top {
			top = s
		}
	}
	return top
}

// canonicalInsight accepts the spellings models use for the two views.
func canonicalInsight(s string) (string, bool) {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "mining"):
		return InsightMining, true
	case strings.Contains(l, "explor"):
		return InsightExploration, true
	}
	return "", false
}

type wireEdge struct {
	SourceNode *string `json:"source_node"`
	TargetNode *string `json:"target_node"`
}

func decodeEdges(wire []wireEdge) ([]PathEdge, error) {
	if len(wire) == 0 {
		return nil, errors.New("path has no edges")
	}
	out := make([]PathEdge, 0, len(wire))
	for i, w := range wire {
		var missing missingFields
		missing.check("source_node", w.SourceNode != nil)
		missing.check("target_node", w.TargetNode != nil)
		if err := missing.err(); err != nil {
			return nil, fmt.Errorf("path edge %d: %w", i, err)
		}
		out = append(out, PathEdge{SourceNode: *w.SourceNode, TargetNode: *w.TargetNode})
	}
	return out, nil
}

func decodeGTInsightPath(raw json.RawMessage) (GTInsightPath, error) {
	var wire struct {
		InsightReasoning string     `json:"insight_reasoning"`
		Insight          *string    `json:"insight"`
		PathReasoning    string     `json:"path_reasoning"`
		Path             []wireEdge `json:"path"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return GTInsightPath{}, fmt.Errorf("unmarshal gt insight path: %w", err)
	}
	if wire.Insight == nil {
		return GTInsightPath{}, errors.New("missing required keys: insight")
	}
	insight, ok := canonicalInsight(*wire.Insight)
	if !ok {
		return GTInsightPath{}, fmt.Errorf("unknown insight %q", *wire.Insight)
	}
	path, err := decodeEdges(wire.Path)
	if err != nil {
		return GTInsightPath{}, err
	}
	return GTInsightPath{
		InsightReasoning: wire.InsightReasoning,
		Insight:          insight,
		PathReasoning:    wire.PathReasoning,
		Path:             path,
	}, nil
}

func decodeRevise(raw json.RawMessage) (ReviseResult, error) {
	var wire struct {
		Thinking    string   `json:"thinking"`
		Revised     *string  `json:"revised"`
		Predictions []string `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ReviseResult{}, fmt.Errorf("unmarshal revise result: %w", err)
	}
	var missing missingFields
	missing.check("revised", wire.Revised != nil)
	missing.check("predictions", wire.Predictions != nil)
	if err := missing.err(); err != nil {
		return ReviseResult{}, err
	}
	return ReviseResult{Thinking: wire.Thinking, Revised: *wire.Revised, Predictions: wire.Predictions}, nil
}

func decodeIncorrectPath(raw json.RawMessage) (IncorrectPath, error) {
	var wire struct {
		Thinking string     `json:"thinking"`
		Path     []wireEdge `json:"path"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return IncorrectPath{}, fmt.Errorf("unmarshal incorrect path: %w", err)
	}
	path, err := decodeEdges(wire.Path)
	if err != nil {
		return IncorrectPath{}, err
	}
	return IncorrectPath{Thinking: wire.Thinking, Path: path}, nil
}
