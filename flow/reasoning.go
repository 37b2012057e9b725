package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/tool"
)

// DefaultInstructions is the system instruction sent with every reasoning
// request. It is rendered as a template with the keys workdir and tools.
const DefaultInstructions = `You are an operating system agent with access to the file system, a terminal and external service integrations.
Understand what the user wants and satisfy it efficiently. Break multi-step tasks into ordered steps and feed the output of each step into the next.
{{- if .workdir}}
Your working directory is {{.workdir}}.
{{- end}}

Tool selection, in order of preference:
1. File operations for creating, reading, modifying or deleting files. When asked to produce code or content and save it, write it to a file.
2. Terminal commands for system inspection, navigation, permissions, software management and network diagnostics.
3. Integration tools for external services such as email, messaging, cloud services and third party applications.
{{- if .tools}}
Available tools: {{join ", " .tools}}.
{{- end}}

Rules:
- Ask the user to confirm before any destructive or irreversible action, such as deleting files or installing or removing software.
- Be proactive in choosing tools and conservative with destructive operations.
- Answer in plain, simple text without markdown, asterisks or escape sequences.`

// ReasoningOptions configures a ReasoningStep.
type ReasoningOptions struct {
	// Instructions overrides DefaultInstructions.
	Instructions string
	// Workdir is rendered into the instructions when set.
	Workdir string
	Logger  logging.Logger
}

// ReasoningStep frames the history and tool catalog for the reasoning model
// and parses its reply into exactly one assistant message.
type ReasoningStep struct {
	model    model.Model
	registry *tool.Registry
	opts     ReasoningOptions
}

// NewReasoningStep creates a reasoning step over m with the tools of registry.
func NewReasoningStep(m model.Model, registry *tool.Registry, optFns ...func(o *ReasoningOptions)) *ReasoningStep {
	opts := ReasoningOptions{
		Instructions: DefaultInstructions,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &ReasoningStep{model: m, registry: registry, opts: opts}
}

// Catalog converts the registry listing into model tool definitions.
func Catalog(registry *tool.Registry) []model.ToolDefinition {
	if registry == nil {
		return nil
	}

	descs := registry.List()
	defs := make([]model.ToolDefinition, 0, len(descs))

	for _, d := range descs {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}

	return defs
}

// Instructions renders the system instruction for the current catalog.
func (s *ReasoningStep) Instructions() (string, error) {
	var names []string
	if s.registry != nil {
		for _, d := range s.registry.List() {
			names = append(names, d.Name)
		}
	}

	return util.RenderTemplate(s.opts.Instructions, map[string]any{
		"workdir": s.opts.Workdir,
		"tools":   names,
	})
}

// Next asks the model for the next assistant message. Every failure wraps
// core.ErrReasoningUnavailable.
func (s *ReasoningStep) Next(rs *core.RunState) (core.Message, error) {
	instructions, err := s.Instructions()
	if err != nil {
		return core.Message{}, fmt.Errorf("%w: render instructions: %v", core.ErrReasoningUnavailable, err)
	}

	req := model.Request{
		Instructions: instructions,
		Messages:     rs.Snapshot(),
		Tools:        Catalog(s.registry),
	}

	start := time.Now()
	resp, err := model.Complete(rs.Context, s.model, req)
	duration := time.Since(start)

	if err == nil {
		resp.Message, err = parseReply(resp.Message)
	}

	s.logCall(resp, duration, err)

	if err != nil {
		if errors.Is(err, core.ErrReasoningUnavailable) {
			return core.Message{}, err
		}
		return core.Message{}, fmt.Errorf("%w: %w", core.ErrReasoningUnavailable, err)
	}

	return resp.Message, nil
}

// parseReply normalizes a model reply into an assistant message. Calls
// without an id, or repeating one, get a fresh id so every tool result can
// be matched to its request.
func parseReply(msg core.Message) (core.Message, error) {
	if strings.TrimSpace(msg.Content) == "" && !msg.HasToolCalls() {
		return core.Message{}, fmt.Errorf("%w: empty reply", core.ErrReasoningUnavailable)
	}

	calls := make([]core.ToolCall, 0, len(msg.ToolCalls))
	seen := make(map[string]bool, len(msg.ToolCalls))

	for i, tc := range msg.ToolCalls {
		if strings.TrimSpace(tc.Name) == "" {
			return core.Message{}, fmt.Errorf("%w: tool call %d has no name", core.ErrReasoningUnavailable, i)
		}

		if tc.ID == "" || seen[tc.ID] {
			tc.ID = "call_" + uuid.NewString()
		}

		seen[tc.ID] = true
		calls = append(calls, tc)
	}

	out := core.NewAssistantMessage(msg.Content, calls...)
	if len(calls) == 0 {
		out.ToolCalls = nil
	}

	return out, nil
}

func (s *ReasoningStep) logCall(resp model.Response, d time.Duration, err error) {
	name := s.model.Info().Name

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	if sl, ok := s.opts.Logger.(*logging.StructuredLogger); ok {
		sl.LogReasoningCall(name, tokens, d, err == nil, err)
		return
	}

	if err != nil {
		s.opts.Logger.Warn("reasoning.call.failed", "model", name, "duration_ms", d.Milliseconds(), "error", err.Error())
		return
	}

	s.opts.Logger.Debug("reasoning.call.completed", "model", name, "tokens", tokens, "duration_ms", d.Milliseconds(), "tool_calls", len(resp.Message.ToolCalls))
}
