// Package embedding turns rendered profile text into vectors.
package embedding

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/agentmesh/internal/engine"
)

const defaultTimeout = 20 * time.Second

// Backend is the embedding half of engine.Engine.
type Backend interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder wraps a Backend and reports failures as absence.
type Embedder struct {
	backend Backend
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Backend = engine.Engine(nil)

// New creates an Embedder using the given backend and model name. A nil
// backend yields an Embedder that is always absent.
func New(b Backend, model string, timeout time.Duration) *Embedder {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Embedder{backend: b, model: model, timeout: timeout, logger: slog.Default()}
}

// Embed returns the vector for text, or false when the backend is
// unconfigured, the text is blank, or the call fails or times out.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, bool) {
	if e == nil || e.backend == nil {
		return nil, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.backend.Embed(ctx, e.model, text)
	if err != nil {
		e.logger.Warn("embedding failed", "model", e.model, "error", err)
		return nil, false
	}
	if len(vec) == 0 {
		e.logger.Warn("embedding returned empty vector", "model", e.model)
		return nil, false
	}
	return vec, true
}
