package agentd

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentd/config"
	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/model"
	"github.com/hupe1980/agentd/model/anthropic"
	"github.com/hupe1980/agentd/model/gemini"
	"github.com/hupe1980/agentd/model/openai"
	"github.com/hupe1980/agentd/runner"
	"github.com/hupe1980/agentd/session"
	"github.com/hupe1980/agentd/session/postgres"
	"github.com/hupe1980/agentd/session/sqlite"
	"github.com/hupe1980/agentd/tool"
	"github.com/hupe1980/agentd/tool/builtin"
	"github.com/hupe1980/agentd/tool/mcp"
)

// FromConfig assembles an Agent from cfg: reasoning model, store, narration
// model, built-in toolbox and MCP integrations. Unreachable MCP servers are
// skipped and a narration model that cannot be created disables narration.
// The caller must Close the returned Agent.
func FromConfig(ctx context.Context, cfg config.Config, logger logging.Logger) (*Agent, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	m, err := NewModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	// Narration is advisory: without a usable generator the agent still runs.
	gen, err := NewTextGenerator(ctx, cfg.Narrator, m)
	if err != nil {
		logger.Warn("agentd.narrator.disabled", "provider", cfg.Narrator.Provider, "error", err.Error())
		gen = nil
	}

	tb, err := builtin.New(func(o *builtin.Options) {
		o.Workdir = cfg.Tools.Workdir
		o.ShellTimeout = cfg.Tools.ShellTimeout
		o.MaxOutputBytes = cfg.Tools.MaxOutputBytes
		o.EnableShell = cfg.Tools.Shell
		o.EnableBrowse = cfg.Tools.Browse
	})
	if err != nil {
		return nil, fmt.Errorf("toolbox: %w", err)
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	a := New(m, func(o *Options) {
		o.Store = store
		o.Tools = tb.Tools()
		o.TextGenerator = gen
		o.Logger = logger
		o.Runner = append(o.Runner, func(o *runner.Options) {
			o.MaxIterations = cfg.Runner.MaxIterations
			o.ToolTimeout = cfg.Runner.ToolTimeout
			o.MaxParallelTools = cfg.Runner.MaxParallelTools
			o.ProgressSteps = cfg.Narrator.Steps
			o.ProgressInterval = cfg.Narrator.Interval
			o.NarrationTimeout = cfg.Narrator.Timeout
			o.NarrationGrace = cfg.Narrator.Grace
			o.Workdir = tb.Workdir()

			if cfg.Runner.EventBuffer > 0 {
				o.EventBufferSize = cfg.Runner.EventBuffer
			}
		})
	})

	integrations := mcp.NewManager(a.runner.Registry(), func(o *mcp.ManagerOptions) {
		o.AllowedURLPrefixes = cfg.MCP.AllowedURLPrefixes
		o.InitTimeout = cfg.MCP.InitTimeout
		o.Logger = logger
	})

	if len(cfg.MCP.Servers) > 0 {
		if err := integrations.Apply(ctx, cfg.MCP.Servers); err != nil {
			_ = closeStore()
			return nil, err
		}
	}

	a.integrations = integrations
	a.closers = []func() error{closeStore, integrations.Shutdown}

	logger.Info("agentd.ready",
		"model", m.Info().Name,
		"provider", cfg.Model.Provider,
		"store", cfg.Store.Driver,
		"tools", a.runner.Registry().Len(),
		"integrations", a.runner.Registry().HasKind(tool.KindIntegration),
	)

	return a, nil
}

// NewModel creates the reasoning model selected by cfg.Provider.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "azure":
		m, err := openai.NewAzureModel(cfg.AzureEndpoint, cfg.AzureAPIVersion, func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
		})
		if err != nil {
			return nil, fmt.Errorf("azure model: %w", err)
		}
		return m, nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// NewTextGenerator creates the narration and title model. Provider "model"
// reuses the reasoning model m and "none" yields nil, which disables
// narration.
func NewTextGenerator(ctx context.Context, cfg config.NarratorConfig, m model.Model) (model.TextGenerator, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "model":
		if m == nil {
			return nil, errors.New("narrator provider model requires a reasoning model")
		}
		return model.AsTextGenerator(m), nil
	case "gemini":
		g, err := gemini.NewGenerator(ctx, func(o *gemini.Options) {
			o.Model = cfg.Model
			o.APIKey = cfg.APIKey
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown narrator provider %q", cfg.Provider)
	}
}

// OpenStore opens the session backend selected by cfg.Driver and returns
// it together with its release func.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (Store, func() error, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	switch cfg.Driver {
	case "memory":
		return session.NewInMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.DSN, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, s.Close, nil
	case "postgres":
		s, err := postgres.New(ctx, cfg.DSN, func(o *postgres.Options) { o.Logger = logger })
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
