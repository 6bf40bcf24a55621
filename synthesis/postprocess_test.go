package synthesis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
)

func sampleRecord() Record {
	tree := IntentTree{"Travel": map[string]any{"destination": "Kyoto"}}
	cat := CategoryReason{Category: CategoryQuestion, Reasoning: "the assistant offered options"}
	return Record{
		SynthesisItem: testItem(),
		Chosen: Branch{
			IntentTree:              tree,
			UtteranceCategoryReason: cat,
			InsightReason: InsightReason{
				MiningView:  View{Reasoning: "mine", Predictions: []string{"Which hotel is near the station?", "Is April too crowded?"}},
				ExploreView: View{Reasoning: "explore", Predictions: []string{"What food should I try?", "How do I get to Nara & back?"}},
			},
		},
		Rejected: Branch{
			IntentTree:              tree,
			UtteranceCategoryReason: cat,
			InsightReason: InsightReason{
				MiningView:  View{Reasoning: "wrong", Predictions: []string{"Tell me about sushi"}},
				ExploreView: View{Reasoning: "explore", Predictions: []string{"What food should I try?"}},
			},
			IncorrectPath: []PathEdge{{"Food", "sushi"}},
		},
	}
}

func TestRenderBranch_PredictionsRoundTrip(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	e := NewExporter(nil, nil)
	for _, b := range []Branch{rec.Chosen, rec.Rejected} {
		out, err := e.RenderBranch(rec.SampleID, b)
		require.NoError(t, err)
		if diff := cmp.Diff(b.InsightReason.Predictions(), ParsePredictions(out)); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
		require.True(t, strings.HasSuffix(out, "</predict>\n"), "out=%q", out)
		require.Contains(t, out, "\"Travel\": {\n    \"destination\": \"Kyoto\"\n  }")
		require.Contains(t, out, "the assistant offered options")
		require.Contains(t, out, "most likely Question")
	}
}

func TestParsePredictions_Multiline(t *testing.T) {
	t.Parallel()

	got := ParsePredictions("x <predict>a\nb</predict>\n<predict></predict><predict>c</predict> y")
	require.Equal(t, []string{"a\nb", "", "c"}, got)
	require.Empty(t, ParsePredictions("no tags"))
}

func TestRenderBranch_WarnsOnPromptLeak(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	e := NewExporter(nil, zap.New(core))

	b := sampleRecord().Chosen
	b.InsightReason.MiningView.Predictions = []string{"Update the Intent Tree please", "fine"}
	b.InsightReason.ExploreView.Predictions = []string{"see intent_tree"}
	out, err := e.RenderBranch("leaky", b)
	require.NoError(t, err)
	require.Contains(t, out, "<predict>Update the Intent Tree please</predict>")

	warns := logs.FilterMessage("possible prompt artifact in prediction").All()
	require.Len(t, warns, 2)
	require.Equal(t, "leaky", warns[0].ContextMap()["sample_id"])
}

func TestToSFTAndPreference(t *testing.T) {
	t.Parallel()

	rec := sampleRecord()
	e := NewExporter(nil, nil)

	sft, err := e.ToSFT(rec)
	require.NoError(t, err)
	require.Len(t, sft.Messages, 2)
	require.Equal(t, "user", sft.Messages[0].Role)
	require.Contains(t, sft.Messages[0].Content, RenderHistory(rec.Context))
	require.Equal(t, "assistant", sft.Messages[1].Role)
	require.Equal(t, rec.Chosen.InsightReason.Predictions(), ParsePredictions(sft.Messages[1].Content))

	pref, err := e.ToPreference(rec)
	require.NoError(t, err)
	require.Equal(t, []ShareGPTTurn{{From: "human", Value: sft.Messages[0].Content}}, pref.Conversations)
	require.Equal(t, "gpt", pref.Chosen.From)
	require.Equal(t, sft.Messages[1].Content, pref.Chosen.Value)
	require.Equal(t, "gpt", pref.Rejected.From)
	require.Equal(t, rec.Rejected.InsightReason.Predictions(), ParsePredictions(pref.Rejected.Value))
}

func TestExportFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "synth.jsonl")
	app, err := fileutils.OpenJSONLAppender(in)
	require.NoError(t, err)
	require.NoError(t, app.Append(sampleRecord()))
	require.NoError(t, app.Append(sampleRecord()))
	require.NoError(t, app.Close())

	e := NewExporter(nil, nil)

	prefOut := filepath.Join(dir, "processed", "pref.json")
	n, err := e.ExportFile(in, prefOut, ModePreference)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	b, err := os.ReadFile(prefOut)
	require.NoError(t, err)
	require.Contains(t, string(b), "<predict>How do I get to Nara & back?</predict>")
	var prefs []PreferenceSample
	require.NoError(t, json.Unmarshal(b, &prefs))
	require.Len(t, prefs, 2)

	sftOut := filepath.Join(dir, "processed", "sft.json")
	_, err = e.ExportFile(in, sftOut, ModeSFT)
	require.NoError(t, err)
	b, err = os.ReadFile(sftOut)
	require.NoError(t, err)
	var sfts []SFTSample
	require.NoError(t, json.Unmarshal(b, &sfts))
	require.Len(t, sfts, 2)

	_, err = e.ExportFile(in, sftOut, "dpo")
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	emptyOut := filepath.Join(dir, "processed", "empty.json")
	n, err = e.ExportFile(empty, emptyOut, ModeSFT)
	require.NoError(t, err)
	require.Zero(t, n)
	b, err = os.ReadFile(emptyOut)
	require.NoError(t, err)
	require.Equal(t, "[]\n", string(b))
}
