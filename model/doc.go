// Package model defines the provider-agnostic abstractions for talking to
// reasoning and text-generation models.
//
// Core goals:
//   - Keep request/response shapes minimal and expressed in core.Message terms
//   - Normalize tool catalog representation (ToolDefinition)
//   - Separate the tool-calling reasoning surface (Model) from plain text
//     generation (TextGenerator) used for narration and titles
//   - Facilitate deterministic fakes for tests (ScriptedModel)
//
// Providers (OpenAI, Azure OpenAI, Anthropic, Gemini) live in sub-packages so
// higher layers (flow, runner) remain decoupled from vendor SDKs.
package model
