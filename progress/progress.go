package progress

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
)

const (
	// DefaultSteps is the narration length for ordinary tasks.
	DefaultSteps = 6
	// IntegrationExtraSteps is added when integration tools are active.
	IntegrationExtraSteps = 2
	// maxSteps caps requested narrations.
	maxSteps = 20
)

const automationPrompt = `You are generating UI progress updates for an automation agent working with files, a terminal and the web.

Task:
{{.task}}

Rules:
- Generate {{.steps}} short progress steps
- Steps should look realistic for an agent automating this task
- Do NOT include results
- Each step should be one short sentence
- Output as a numbered list only`

const integrationPrompt = `You are generating UI progress updates for an AI agent integrating with external services.

Task:
{{.task}}

Rules:
- Generate {{.steps}} short progress steps
- Steps should reflect integration with external services and third party applications
- Include steps for connecting, sending requests and processing responses
- Do NOT include results
- Each step should be one short sentence
- Output as a numbered list only`

// Options configures a Narrator.
type Options struct {
	Logger logging.Logger
}

// Narrator produces advisory progress phrases for a task. Its output is
// cosmetic and never describes what actually happened.
type Narrator struct {
	gen    model.TextGenerator
	logger logging.Logger
}

// NewNarrator creates a narrator backed by gen. A nil gen yields a narrator
// that always returns an empty narration.
func NewNarrator(gen model.TextGenerator, optFns ...func(o *Options)) *Narrator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Narrator{gen: gen, logger: opts.Logger}
}

// StepCount returns the narration length for base steps, biased upward when
// integration tools take part in the run.
func StepCount(base int, externalIntegration bool) int {
	if base <= 0 {
		base = DefaultSteps
	}
	if externalIntegration {
		base += IntegrationExtraSteps
	}
	return min(base, maxSteps)
}

// Prompt renders the narration prompt for task.
func Prompt(task string, steps int, externalIntegration bool) (string, error) {
	tmpl := automationPrompt
	if externalIntegration {
		tmpl = integrationPrompt
	}

	return util.RenderTemplate(tmpl, map[string]any{"task": task, "steps": steps})
}

// Narrate returns at most steps phrases for task. It never fails: any
// problem is logged as core.ErrNarrationUnavailable and yields an empty
// narration.
func (n *Narrator) Narrate(ctx context.Context, task string, steps int, externalIntegration bool) []string {
	if n == nil || n.gen == nil || steps <= 0 {
		return nil
	}

	out, err := n.narrate(ctx, task, steps, externalIntegration)
	if err != nil {
		n.logger.Warn("progress.narration.failed", "error", err.Error())
		return nil
	}

	n.logger.Debug("progress.narration.generated", "requested", steps, "steps", len(out))

	return out
}

func (n *Narrator) narrate(ctx context.Context, task string, steps int, externalIntegration bool) ([]string, error) {
	prompt, err := Prompt(task, steps, externalIntegration)
	if err != nil {
		return nil, fmt.Errorf("%w: render prompt: %v", core.ErrNarrationUnavailable, err)
	}

	text, err := n.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNarrationUnavailable, err)
	}

	out := ParseSteps(text, steps)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no numbered steps in reply", core.ErrNarrationUnavailable)
	}

	return out, nil
}

// ParseSteps extracts the items of a numbered list ("1. Opening browser").
// Lines not starting with a digit are ignored; at most limit items are kept
// when limit > 0.
func ParseSteps(text string, limit int) []string {
	var out []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !unicode.IsDigit(rune(line[0])) {
			continue
		}

		i := strings.IndexAny(line, ".)")
		if i < 0 {
			continue
		}

		step := strings.Trim(strings.TrimSpace(line[i+1:]), "*_` ")
		if step == "" {
			continue
		}

		out = append(out, step)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}
