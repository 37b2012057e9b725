// Package config loads and validates agentd configuration. Values start
// from defaults, are overlaid by an optional YAML file and finally by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentd/tool/mcp"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Narrator  NarratorConfig  `yaml:"narrator"`
	Runner    RunnerConfig    `yaml:"runner"`
	Store     StoreConfig     `yaml:"store"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 keeps streams open
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects level and format of the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ModelConfig selects the reasoning model.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // openai, azure, anthropic
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`

	AzureEndpoint   string `yaml:"azure_endpoint"`
	AzureAPIVersion string `yaml:"azure_api_version"`
}

// NarratorConfig selects the model producing progress steps and titles.
type NarratorConfig struct {
	Provider string        `yaml:"provider"` // gemini, model, none
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Steps    int           `yaml:"steps"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Grace    time.Duration `yaml:"grace"` // wait for late narration after the answer
}

// RunnerConfig bounds the graph controller.
type RunnerConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	EventBuffer      int           `yaml:"event_buffer"`
}

// StoreConfig selects the session backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	DSN    string `yaml:"dsn"`
}

// ToolsConfig configures the built-in toolbox.
type ToolsConfig struct {
	Workdir        string        `yaml:"workdir"`
	ShellTimeout   time.Duration `yaml:"shell_timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	Shell          bool          `yaml:"shell"`
	Browse         bool          `yaml:"browse"`
}

// MCPConfig lists the integration servers. AllowedURLPrefixes restricts
// servers added at runtime through the API.
type MCPConfig struct {
	Servers            []mcp.ServerConfig `yaml:"servers"`
	InitTimeout        time.Duration      `yaml:"init_timeout"`
	AllowedURLPrefixes []string           `yaml:"allowed_url_prefixes"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Model: ModelConfig{
			Provider:        "openai",
			Name:            "gpt-4o-mini",
			Temperature:     0.2,
			MaxTokens:       4096,
			AzureAPIVersion: "2024-06-01",
		},
		Narrator: NarratorConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Steps:    6,
			Interval: time.Second,
			Timeout:  15 * time.Second,
			Grace:    250 * time.Millisecond,
		},
		Runner: RunnerConfig{
			MaxIterations:    25,
			ToolTimeout:      60 * time.Second,
			MaxParallelTools: 4,
			EventBuffer:      100,
		},
		Store: StoreConfig{Driver: "sqlite", DSN: "agentd.db"},
		Tools: ToolsConfig{
			Workdir:        "workspace",
			ShellTimeout:   60 * time.Second,
			MaxOutputBytes: 100_000,
			Shell:          true,
			Browse:         true,
		},
		MCP:       MCPConfig{InitTimeout: 30 * time.Second},
		Telemetry: TelemetryConfig{ServiceName: "agentd"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envStr("AGENTD_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = envDuration("AGENTD_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = envDuration("AGENTD_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Log.Level = envStr("AGENTD_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("AGENTD_LOG_FORMAT", c.Log.Format)

	c.Model.Provider = envStr("AGENTD_MODEL_PROVIDER", c.Model.Provider)
	c.Model.Name = envStr("AGENTD_MODEL", c.Model.Name)
	c.Model.BaseURL = envStr("AGENTD_MODEL_BASE_URL", c.Model.BaseURL)
	c.Model.AzureEndpoint = envStr("AZURE_OPENAI_ENDPOINT", c.Model.AzureEndpoint)
	c.Model.AzureAPIVersion = envStr("AZURE_OPENAI_API_VERSION", c.Model.AzureAPIVersion)

	switch c.Model.Provider {
	case "openai":
		c.Model.APIKey = envStr("OPENAI_API_KEY", c.Model.APIKey)
	case "azure":
		c.Model.APIKey = envStr("AZURE_OPENAI_API_KEY", c.Model.APIKey)
	case "anthropic":
		c.Model.APIKey = envStr("ANTHROPIC_API_KEY", c.Model.APIKey)
	}

	c.Narrator.Provider = envStr("AGENTD_NARRATOR_PROVIDER", c.Narrator.Provider)
	c.Narrator.Model = envStr("AGENTD_NARRATOR_MODEL", c.Narrator.Model)
	c.Narrator.APIKey = envStr("GEMINI_API_KEY", c.Narrator.APIKey)
	c.Narrator.Steps = envInt("AGENTD_PROGRESS_STEPS", c.Narrator.Steps)
	c.Narrator.Grace = envDuration("AGENTD_NARRATION_GRACE", c.Narrator.Grace)

	c.Runner.MaxIterations = envInt("AGENTD_MAX_ITERATIONS", c.Runner.MaxIterations)
	c.Runner.ToolTimeout = envDuration("AGENTD_TOOL_TIMEOUT", c.Runner.ToolTimeout)
	c.Runner.MaxParallelTools = envInt("AGENTD_MAX_PARALLEL_TOOLS", c.Runner.MaxParallelTools)

	c.Store.Driver = envStr("AGENTD_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = envStr("AGENTD_STORE_DSN", c.Store.DSN)

	c.Tools.Workdir = envStr("AGENTD_WORKDIR", c.Tools.Workdir)
	c.Tools.Shell = envBool("AGENTD_SHELL", c.Tools.Shell)
	c.Tools.Browse = envBool("AGENTD_BROWSE", c.Tools.Browse)

	c.Telemetry.Endpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.ServiceName = envStr("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
}

// Validate rejects unknown providers and drivers and non-positive limits.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("config: server.addr is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.level %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("config: unknown log.format %q", c.Log.Format))
	}

	switch c.Model.Provider {
	case "openai", "anthropic":
	case "azure":
		if c.Model.AzureEndpoint == "" {
			errs = append(errs, errors.New("config: model.azure_endpoint is required for provider azure"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown model.provider %q", c.Model.Provider))
	}

	if c.Model.Name == "" {
		errs = append(errs, errors.New("config: model.name is required"))
	}

	if c.Model.MaxTokens <= 0 {
		errs = append(errs, errors.New("config: model.max_tokens must be positive"))
	}

	switch c.Narrator.Provider {
	case "gemini", "model", "none":
	default:
		errs = append(errs, fmt.Errorf("config: unknown narrator.provider %q", c.Narrator.Provider))
	}

	if c.Narrator.Steps <= 0 {
		errs = append(errs, errors.New("config: narrator.steps must be positive"))
	}

	if c.Narrator.Interval < 0 || c.Narrator.Timeout <= 0 {
		errs = append(errs, errors.New("config: narrator.interval must not be negative and narrator.timeout must be positive"))
	}

	if c.Narrator.Grace < 0 {
		errs = append(errs, errors.New("config: narrator.grace must not be negative"))
	}

	if c.Runner.MaxIterations < 0 {
		errs = append(errs, errors.New("config: runner.max_iterations must not be negative"))
	}

	if c.Runner.ToolTimeout <= 0 {
		errs = append(errs, errors.New("config: runner.tool_timeout must be positive"))
	}

	if c.Runner.MaxParallelTools < 0 || c.Runner.EventBuffer < 0 {
		errs = append(errs, errors.New("config: runner limits must not be negative"))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("config: store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown store.driver %q", c.Store.Driver))
	}

	if c.Tools.ShellTimeout <= 0 || c.Tools.MaxOutputBytes <= 0 {
		errs = append(errs, errors.New("config: tools.shell_timeout and tools.max_output_bytes must be positive"))
	}

	for i, srv := range c.MCP.Servers {
		if srv.Name == "" || srv.URL == "" {
			errs = append(errs, fmt.Errorf("config: mcp.servers[%d] needs name and url", i))
		}
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
