package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// ErrNotConfigured is returned by NewGenkit when the selected backend has
// no API key.
var ErrNotConfigured = errors.New("llm provider not configured")

// Config selects and tunes the generation backend.
type Config struct {
	Provider    string // openai, anthropic or google
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Genkit implements Provider on top of a Genkit instance.
type Genkit struct {
	g         *genkit.Genkit
	modelName string
	config    *ai.GenerationCommonConfig
}

// NewGenkit initializes Genkit with the plugin for cfg.Provider.
func NewGenkit(ctx context.Context, cfg Config) (*Genkit, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel(provider)
	}

	var g *genkit.Genkit
	switch provider {
	case "openai", "":
		provider = "openai"
		g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "openai",
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
		}))
	case "anthropic":
		g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		}))
	case "google":
		// The Google AI plugin reads its key from the environment.
		if err := os.Setenv("GEMINI_API_KEY", cfg.APIKey); err != nil {
			return nil, fmt.Errorf("set GEMINI_API_KEY: %w", err)
		}
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: openai, anthropic, google)", cfg.Provider)
	}

	name := modelName(provider, model)
	slog.Info("genkit initialized", "provider", provider, "model", name)

	return &Genkit{
		g:         g,
		modelName: name,
		config: &ai.GenerationCommonConfig{
			MaxOutputTokens: cfg.MaxTokens,
			Temperature:     cfg.Temperature,
		},
	}, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "google":
		return "gemini-2.0-flash"
	default:
		return "gpt-4o-mini"
	}
}

func modelName(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "google":
		return "googleai/" + model
	default:
		return "openai/" + model
	}
}

func (p *Genkit) options(prompt []Message) []ai.GenerateOption {
	return []ai.GenerateOption{
		ai.WithModelName(p.modelName),
		ai.WithMessages(toGenkitMessages(prompt)...),
		ai.WithConfig(p.config),
	}
}

// Complete returns the whole reply for prompt.
func (p *Genkit) Complete(ctx context.Context, prompt []Message) (string, error) {
	resp, err := genkit.Generate(ctx, p.g, p.options(prompt)...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", shared.MarkUnreachable(err))
	}
	return resp.Text(), nil
}

// Stream yields the reply as text deltas.
func (p *Genkit) Stream(ctx context.Context, prompt []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var streamed bool
		for val, err := range genkit.GenerateStream(ctx, p.g, p.options(prompt)...) {
			if err != nil {
				yield("", fmt.Errorf("stream: %w", shared.MarkUnreachable(err)))
				return
			}
			if val.Chunk != nil {
				for _, part := range val.Chunk.Content {
					if part.Kind != ai.PartText || part.Text == "" {
						continue
					}
					streamed = true
					if !yield(part.Text, nil) {
						return
					}
				}
			}
			// Some backends only deliver the final response.
			if val.Done && !streamed && val.Response != nil {
				if text := val.Response.Text(); text != "" {
					if !yield(text, nil) {
						return
					}
				}
			}
		}
	}
}

func toGenkitMessages(prompt []Message) []*ai.Message {
	msgs := make([]*ai.Message, 0, len(prompt))
	for _, m := range prompt {
		var role ai.Role
		switch m.Role {
		case domain.RoleSystem:
			role = ai.RoleSystem
		case domain.RoleUser:
			role = ai.RoleUser
		case domain.RoleAssistant:
			role = ai.RoleModel
		default:
			continue
		}
		msgs = append(msgs, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	return msgs
}
