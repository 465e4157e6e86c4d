package evaluator

import (
	"fmt"
	"strings"

	"github.com/kalambet/agentmesh/internal/engine"
)

const systemPrompt = `You are a cautious agent-to-agent matchmaking engine.
You simulate two assistant agents representing two humans (A and B).
Hard rules:
- Do NOT invent facts not present in the provided profiles.
- Do NOT claim you've messaged anyone externally.
- Prefer asking a short clarifying question if info is missing.
- Keep the transcript short (4 to 8 turns).
- Output must be ONLY a single JSON object matching the provided schema. No prose, no markdown.`

// BuildPrompt constructs the chat messages for one pair evaluation.
func BuildPrompt(in PairInput) []engine.Message {
	nameA, nameB := in.NameA, in.NameB
	if strings.TrimSpace(nameA) == "" {
		nameA = "A"
	}
	if strings.TrimSpace(nameB) == "" {
		nameB = "B"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Human A (name): %s\n", nameA)
	fmt.Fprintf(&sb, "Profile A:\n%s\n\n", in.TextA)
	fmt.Fprintf(&sb, "Human B (name): %s\n", nameB)
	fmt.Fprintf(&sb, "Profile B:\n%s\n\n", in.TextB)
	sb.WriteString("Task: Decide if a human-to-human intro is worth escalating now.\n")
	sb.WriteString("If yes, draft intros + one consent/info question per side.")

	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

// pairSchema returns the strict JSON schema named pair_eval.
func pairSchema() *engine.Schema {
	closed := false
	zero, one := 0.0, 1.0
	str := func(desc string) *engine.Schema { return &engine.Schema{Type: "string", Description: desc} }
	return &engine.Schema{
		Type:                 "object",
		AdditionalProperties: &closed,
		Properties: map[string]*engine.Schema{
			"should_connect": {Type: "boolean", Description: "Whether the intro is worth escalating now"},
			"score":          {Type: "number", Minimum: &zero, Maximum: &one, Description: "Fit score between 0 and 1"},
			"rationale":      str("Why the two should or should not meet"),
			"transcript": {
				Type:        "array",
				Description: "Short simulated negotiation between the two agents",
				Items: &engine.Schema{
					Type:                 "object",
					AdditionalProperties: &closed,
					Properties: map[string]*engine.Schema{
						"speaker": {Type: "string", Enum: []string{"agent_a", "agent_b"}},
						"message": {Type: "string"},
					},
					Required: []string{"speaker", "message"},
				},
			},
			"intro_to_a":     str("Introduction addressed to human A"),
			"intro_to_b":     str("Introduction addressed to human B"),
			"question_for_a": str("One consent or clarifying question for A"),
			"question_for_b": str("One consent or clarifying question for B"),
		},
		Required: []string{
			"should_connect", "score", "rationale", "transcript",
			"intro_to_a", "intro_to_b", "question_for_a", "question_for_b",
		},
	}
}
