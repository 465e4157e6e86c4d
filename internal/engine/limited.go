package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles Chat and Embed calls on a wrapped Engine so a burst of
// room passes cannot exceed a provider's request rate.
type Limited struct {
	Engine
	limiter *rate.Limiter
}

// NewLimited wraps e with a limiter allowing perSecond calls with the given
// burst. A non-positive rate returns e unchanged.
func NewLimited(e Engine, perSecond float64, burst int) Engine {
	if perSecond <= 0 {
		return e
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{Engine: e, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.Engine.Chat(ctx, model, messages, jsonSchema)
}

func (l *Limited) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.Engine.Embed(ctx, model, text)
}
