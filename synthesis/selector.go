package synthesis

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// ErrTooShort marks a conversation with fewer than two rounds; it is skipped, not failed.
var ErrTooShort = errors.New("conversation has fewer than 2 rounds")

// Random streams derived from one sample id.
const (
	streamSelect uint64 = iota + 1
	streamShuffle
)

// newSampleRand returns a random source that depends only on the sample id and stream, so a
// re-run over the same input reproduces the same splits and shuffles.
func newSampleRand(id SampleID, stream uint64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, stream))
}

// SelectItem holds out the final user/assistant exchange of conv as the label and picks up to
// two earlier user utterances as distractors. It also returns the selected round.
func SelectItem(conv Conversation) (SynthesisItem, int, error) {
	msgs := conv.Conversation
	rounds := len(msgs) / 2
	if rounds < 2 {
		return SynthesisItem{}, 0, fmt.Errorf("sample %s: %w", conv.ID, ErrTooShort)
	}

	rng := newSampleRand(conv.ID, streamSelect)
	selected := rng.IntN(rounds - 1)

	item := SynthesisItem{
		SampleID:      conv.ID,
		ItemID:        0,
		Context:       append([]Message(nil), msgs[:len(msgs)-2]...),
		Label:         msgs[len(msgs)-2].Content,
		NegativeLabel: []string{},
	}

	// Distractors sit at least one full round after the selected round.
	if len(msgs)-(selected*2+6) >= 0 {
		item.NegativeLabel = append(item.NegativeLabel, "Incorrect Input 1: "+msgs[selected*2+4].Content)
	}
	if len(msgs)-(selected*2+8) >= 0 {
		item.NegativeLabel = append(item.NegativeLabel, "Incorrect Input 2: "+msgs[selected*2+6].Content)
	}
	return item, selected, nil
}
