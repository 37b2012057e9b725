// Package gemini provides a model.TextGenerator backed by the Google Gemini
// API. It serves the cosmetic side of a run (progress narration and session
// titles) and is deliberately separate from the tool-calling reasoning model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/agentd/model"
)

// Options configures the Gemini text generator.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
	BaseURL         string
}

// Generator implements model.TextGenerator over the Gemini API.
type Generator struct {
	client *genai.Client
	opts   Options
}

var _ model.TextGenerator = (*Generator)(nil)

// NewGenerator creates a Gemini text generator. Without an explicit APIKey
// the SDK falls back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGenerator(ctx context.Context, optFns ...func(o *Options)) (*Generator, error) {
	opts := Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 512,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}

	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Generator{client: client, opts: opts}, nil
}

// GenerateText implements model.TextGenerator.
func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.opts.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.opts.Temperature),
		MaxOutputTokens: g.opts.MaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}

	return text, nil
}

// Info returns metadata describing the generator.
func (g *Generator) Info() model.Info {
	return model.Info{Name: g.opts.Model, Provider: "gemini"}
}
