package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentd/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the reasoning step.
type Request struct {
	Instructions string           `json:"instructions"` // System instruction
	Messages     []core.Message   `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the single assistant reply produced for a Request.
type Response struct {
	ID           string       `json:"id"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the reasoning step. An
// implementation sends exactly one Response or one error and then closes
// both channels.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// TextGenerator produces free text for a prompt. It backs narration and
// title summarization, never tool calling.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ErrNoResponse is returned by Complete when a model closes its channels
// without producing a reply.
var ErrNoResponse = errors.New("model returned no response")

// Complete drives m.Generate and waits for the single reply.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		resp Response
		got  bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			resp, got = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !got {
		return Response{}, ErrNoResponse
	}

	return resp, nil
}

// textGenerator adapts a Model to the TextGenerator interface.
type textGenerator struct {
	model Model
}

// AsTextGenerator exposes a reasoning Model as a TextGenerator by sending
// the prompt as a single human message without tools.
func AsTextGenerator(m Model) TextGenerator {
	return &textGenerator{model: m}
}

// GenerateText implements TextGenerator.
func (g *textGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := Complete(ctx, g.model, Request{Messages: []core.Message{core.NewHumanMessage(prompt)}})
	if err != nil {
		return "", fmt.Errorf("generate text with %s: %w", g.model.Info().Name, err)
	}

	return resp.Message.Content, nil
}

// TextGeneratorFunc adapts a plain function to TextGenerator.
type TextGeneratorFunc func(ctx context.Context, prompt string) (string, error)

// GenerateText implements TextGenerator.
func (f TextGeneratorFunc) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
