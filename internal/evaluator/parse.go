package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var errNoScore = errors.New("response has no usable score")

// parseJudgment decodes a model response into a Judgment. Models do not
// always honor the schema exactly, so fenced JSON, string-typed booleans
// and numbers, and both speaker spellings are accepted.
func parseJudgment(raw string) (Judgment, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return Judgment{}, fmt.Errorf("parsing judgment: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		return Judgment{}, errNoScore
	}

	j := Judgment{
		ShouldConnect: coerceBool(data["should_connect"]),
		Score:         clamp01(score),
		Rationale:     coerceString(data["rationale"]),
		IntroA:        coerceString(data["intro_to_a"]),
		IntroB:        coerceString(data["intro_to_b"]),
		QuestionA:     coerceString(data["question_for_a"]),
		QuestionB:     coerceString(data["question_for_b"]),
	}

	turns, _ := data["transcript"].([]any)
	for _, t := range turns {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		speaker, ok := parseSpeaker(coerceString(m["speaker"]))
		if !ok {
			continue
		}
		msg := coerceString(m["message"])
		if msg == "" {
			continue
		}
		j.Transcript = append(j.Transcript, Turn{Speaker: speaker, Message: msg})
	}
	return j, nil
}

func parseSpeaker(v string) (Speaker, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "agent_a", "a":
		return SpeakerA, true
	case "agent_b", "b":
		return SpeakerB, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
