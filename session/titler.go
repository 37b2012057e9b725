package session

import (
	"context"
	"strings"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/internal/util"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
)

// UntitledChat is the summary of an empty conversation.
const UntitledChat = "Untitled Chat"

const titlePrompt = `Summarize the following conversation as a short title of at most {{.words}} words.
Reply with the title only, without quotes or punctuation at the end.

{{range .messages}}{{.Role}}: {{.Content}}
{{end}}`

// TitlerOptions configures a Titler.
type TitlerOptions struct {
	// MaxMessages bounds how many leading messages are summarized.
	MaxMessages int
	// MaxWords is the requested title length.
	MaxWords int
	Logger   logging.Logger
}

// Titler turns a conversation into a short title. Without a generator, or
// when generation fails, it falls back to core.DeriveTitle of the first
// human message.
type Titler struct {
	gen  model.TextGenerator
	opts TitlerOptions
}

// NewTitler creates a titler backed by gen, which may be nil.
func NewTitler(gen model.TextGenerator, optFns ...func(o *TitlerOptions)) *Titler {
	opts := TitlerOptions{
		MaxMessages: 10,
		MaxWords:    6,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Titler{gen: gen, opts: opts}
}

// Summarize returns a title for msgs. Only human and assistant text is
// considered; tool results are skipped.
func (t *Titler) Summarize(ctx context.Context, msgs []core.Message) string {
	var convo []core.Message
	for _, m := range msgs {
		if m.Role == core.RoleToolResult || strings.TrimSpace(m.Content) == "" {
			continue
		}
		convo = append(convo, m)
		if len(convo) == t.opts.MaxMessages {
			break
		}
	}

	if len(convo) == 0 {
		return UntitledChat
	}

	fallback := fallbackTitle(convo)
	if t.gen == nil {
		return fallback
	}

	prompt, err := util.RenderTemplate(titlePrompt, map[string]any{"words": t.opts.MaxWords, "messages": convo})
	if err != nil {
		t.opts.Logger.Warn("session.title.failed", "error", err.Error())
		return fallback
	}

	out, err := t.gen.GenerateText(ctx, prompt)
	if err != nil {
		t.opts.Logger.Warn("session.title.failed", "error", err.Error())
		return fallback
	}

	title := strings.Trim(strings.TrimSpace(out), `"'*.`)
	if title == "" {
		return fallback
	}

	return core.DeriveTitle(title)
}

func fallbackTitle(msgs []core.Message) string {
	for _, m := range msgs {
		if m.Role == core.RoleHuman {
			return core.DeriveTitle(m.Content)
		}
	}
	return core.DeriveTitle(msgs[0].Content)
}
