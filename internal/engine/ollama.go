package engine

import (
	"context"

	"github.com/kalambet/agentmesh/internal/ollama"
)

// judgeTemperature keeps local pair judgments close to deterministic.
const judgeTemperature = 0.2

// OllamaEngine adapts the internal/ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at baseURL.
// maxTokens caps chat output; 0 leaves the model default.
func NewOllamaEngine(baseURL string, maxTokens int) *OllamaEngine {
	c := ollama.New(baseURL)
	c.Options = ollama.Options{NumPredict: maxTokens, Temperature: judgeTemperature}
	c.KeepAlive = "10m"
	return &OllamaEngine{client: c}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	// A nil *Schema must not reach the client as a non-nil interface.
	var format any
	if jsonSchema != nil {
		format = jsonSchema
	}
	return e.client.Chat(ctx, model, msgs, format)
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
