package synthesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/prompts"
)

const (
	ModeSFT        = "sft"
	ModePreference = "pref"
)

// SFTSample is one supervised example in chat-messages form.
type SFTSample struct {
	Messages []Message `json:"messages"`
}

type ShareGPTTurn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// PreferenceSample is one DPO-style pair in ShareGPT form.
type PreferenceSample struct {
	Conversations []ShareGPTTurn `json:"conversations"`
	Chosen        ShareGPTTurn   `json:"chosen"`
	Rejected      ShareGPTTurn   `json:"rejected"`
}

// Exporter renders synthesized records into training samples.
type Exporter struct {
	prompts *prompts.Set
	logger  *zap.Logger
}

func NewExporter(set *prompts.Set, logger *zap.Logger) *Exporter {
	if set == nil {
		set = prompts.MustDefault()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{prompts: set, logger: logger}
}

func (e *Exporter) userPrompt(context []Message) (string, error) {
	return e.prompts.Render(prompts.Infer, map[string]any{"chat_history": RenderHistory(context)})
}

// RenderBranch fills the output template from one branch. Predictions are emitted mining first,
// one <predict> element per line.
func (e *Exporter) RenderBranch(id SampleID, b Branch) (string, error) {
	preds := b.InsightReason.Predictions()
	var wrapped strings.Builder
	for _, p := range preds {
		l := strings.ToLower(p)
		if strings.Contains(l, "intent tree") || strings.Contains(l, "intent_tree") {
			e.logger.Warn("possible prompt artifact in prediction",
				zap.String("sample_id", string(id)),
				zap.String("prediction", fileutils.Truncate(p, 80)),
			)
		}
		wrapped.WriteString("<predict>")
		wrapped.WriteString(p)
		wrapped.WriteString("</predict>\n")
	}

	return e.prompts.Render(prompts.Output, map[string]any{
		"intent_tree":                  indentJSON(b.IntentTree),
		"utterance_category_reasoning": b.UtteranceCategoryReason.Reasoning,
		"utterance_category":           b.UtteranceCategoryReason.Category,
		"mining_reasoning":             b.InsightReason.MiningView.Reasoning,
		"exploration_reasoning":        b.InsightReason.ExploreView.Reasoning,
		"predictions":                  wrapped.String(),
	})
}

func (e *Exporter) ToSFT(rec Record) (SFTSample, error) {
	user, err := e.userPrompt(rec.Context)
	if err != nil {
		return SFTSample{}, err
	}
	assistant, err := e.RenderBranch(rec.SampleID, rec.Chosen)
	if err != nil {
		return SFTSample{}, err
	}
	return SFTSample{Messages: []Message{
		{Role: "user", Content: user},
		{Role: "assistant", Content: assistant},
	}}, nil
}

func (e *Exporter) ToPreference(rec Record) (PreferenceSample, error) {
	user, err := e.userPrompt(rec.Context)
	if err != nil {
		return PreferenceSample{}, err
	}
	chosen, err := e.RenderBranch(rec.SampleID, rec.Chosen)
	if err != nil {
		return PreferenceSample{}, err
	}
	rejected, err := e.RenderBranch(rec.SampleID, rec.Rejected)
	if err != nil {
		return PreferenceSample{}, err
	}
	return PreferenceSample{
		Conversations: []ShareGPTTurn{{From: "human", Value: user}},
		Chosen:        ShareGPTTurn{From: "gpt", Value: chosen},
		Rejected:      ShareGPTTurn{From: "gpt", Value: rejected},
	}, nil
}

// ExportFile converts a synthesized JSONL file into one JSON array of samples.
func (e *Exporter) ExportFile(in, out, mode string) (int, error) {
	records, err := fileutils.ReadJSONL[Record](in)
	if err != nil {
		return 0, err
	}

	var samples []any
	for i, rec := range records {
		var s any
		switch mode {
		case ModeSFT:
			s, err = e.ToSFT(rec)
		case ModePreference:
			s, err = e.ToPreference(rec)
		default:
			return 0, fmt.Errorf("unknown export mode %q", mode)
		}
		if err != nil {
			return 0, fmt.Errorf("record %d (%s): %w", i, rec.SampleID, err)
		}
		samples = append(samples, s)
	}
	if samples == nil {
		samples = []any{}
	}
	if err := fileutils.WriteJSONFileAtomic(out, samples, true); err != nil {
		return 0, err
	}
	return len(samples), nil
}

var predictRe = regexp.MustCompile(`(?s)<predict>(.*?)</predict>`)

// ParsePredictions recovers the predictions of a rendered branch in order.
func ParsePredictions(text string) []string {
	matches := predictRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}
