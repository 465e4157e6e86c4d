// Package evaluator asks a chat model whether two people in a room should
// be introduced, and turns its structured answer into a Judgment.
package evaluator

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/agentmesh/internal/engine"
)

const defaultTimeout = 45 * time.Second

// Chatter is the chat half of engine.Engine.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

type Speaker string

const (
	SpeakerA Speaker = "A"
	SpeakerB Speaker = "B"
)

type Turn struct {
	Speaker Speaker `json:"speaker"`
	Message string  `json:"message"`
}

// PairInput carries the two rendered profiles. A and B are in canonical
// pair order so that IntroA/QuestionA land on the right person.
type PairInput struct {
	NameA, TextA string
	NameB, TextB string
}

type Judgment struct {
	ShouldConnect bool
	Score         float64
	Rationale     string
	Transcript    []Turn
	IntroA        string
	IntroB        string
	QuestionA     string
	QuestionB     string
}

// Evaluator judges candidate pairs with a chat model.
type Evaluator struct {
	client  Chatter
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Evaluator. A nil client yields an evaluator that always
// reports absence, which is how a missing provider configuration degrades.
func New(client Chatter, model string, timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Evaluator{client: client, model: model, timeout: timeout, logger: slog.Default()}
}

// Evaluate returns the model's judgment for the pair, or false when the
// evaluator is unconfigured, times out, fails, or returns something that
// cannot be parsed. It never blocks longer than the configured timeout.
func (e *Evaluator) Evaluate(ctx context.Context, in PairInput) (Judgment, bool) {
	if e == nil || e.client == nil {
		return Judgment{}, false
	}
	if strings.TrimSpace(in.TextA) == "" || strings.TrimSpace(in.TextB) == "" {
		return Judgment{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.client.Chat(ctx, e.model, BuildPrompt(in), pairSchema())
	if err != nil {
		e.logger.Warn("pair evaluation chat failed", "error", err)
		return Judgment{}, false
	}

	j, err := parseJudgment(raw)
	if err != nil {
		e.logger.Warn("failed to parse pair evaluation", "error", err, "response", truncate(raw, 500))
		return Judgment{}, false
	}
	return j, true
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
