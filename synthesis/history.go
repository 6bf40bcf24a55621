package synthesis

import (
	"fmt"
	"strings"
)

// RenderHistory turns messages into a round-numbered transcript. A new round starts at every
// user message whose previous non-system message was not also from the user. System messages
// are tagged and do not take part in round numbering.
func RenderHistory(messages []Message) string {
	lines := make([]string, 0, len(messages)+len(messages)/2)
	round := 1
	lastRole := ""

	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		content := strings.TrimSpace(m.Content)

		if role == "system" {
			lines = append(lines, "[System Prompt]: "+content)
			continue
		}
		if role == "user" && lastRole != "user" {
			lines = append(lines, fmt.Sprintf("\n[Round %d]", round))
			round++
		}
		lines = append(lines, capitalize(role)+": "+content)
		lastRole = role
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
