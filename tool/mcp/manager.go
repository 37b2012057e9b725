package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentd/logging"
	"github.com/hupe1980/agentd/tool"
)

// ErrInvalidServer is returned by Set for a server that fails validation.
var ErrInvalidServer = errors.New("mcp: invalid server")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// AllowedURLPrefixes restricts server URLs set at runtime. Empty allows
	// any http or https URL.
	AllowedURLPrefixes []string
	// InitTimeout bounds each reconnect.
	InitTimeout time.Duration
	// Logging services.
	Logger logging.Logger
}

// ServerStatus describes a configured server. Headers are omitted because
// they usually carry credentials.
type ServerStatus struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Tools     int    `json:"tools"`
}

// Manager owns the live integration connections and keeps the integration
// tools of a registry in sync with them. Changing the server list shuts the
// old Handle down, connects the new list and swaps the tools.
type Manager struct {
	mu       sync.Mutex
	registry *tool.Registry
	servers  []ServerConfig
	handle   *Handle
	opts     ManagerOptions
}

// NewManager creates a Manager feeding registry. Call Apply to connect.
func NewManager(registry *tool.Registry, optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		InitTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 30 * time.Second
	}

	return &Manager{registry: registry, opts: opts}
}

// Validate checks that srv has a name and an absolute http(s) URL matching
// one of the allowed prefixes.
func (m *Manager) Validate(srv ServerConfig) error {
	if strings.TrimSpace(srv.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidServer)
	}

	u, err := url.Parse(srv.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServer, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must use http or https", ErrInvalidServer)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: url needs a host", ErrInvalidServer)
	}

	if len(m.opts.AllowedURLPrefixes) > 0 && !slices.ContainsFunc(m.opts.AllowedURLPrefixes, func(p string) bool {
		return strings.HasPrefix(srv.URL, p)
	}) {
		return fmt.Errorf("%w: url must start with one of %s", ErrInvalidServer, strings.Join(m.opts.AllowedURLPrefixes, ", "))
	}

	return nil
}

// Apply replaces the whole server list. Unreachable servers are skipped as
// in Init.
func (m *Manager) Apply(ctx context.Context, servers []ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.apply(ctx, slices.Clone(servers))
}

// Set adds srv or replaces the server of the same name, then reconnects.
func (m *Manager) Set(ctx context.Context, srv ServerConfig) error {
	if err := m.Validate(srv); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	servers := slices.Clone(m.servers)
	if i := slices.IndexFunc(servers, func(s ServerConfig) bool { return s.Name == srv.Name }); i >= 0 {
		servers[i] = srv
	} else {
		servers = append(servers, srv)
	}

	return m.apply(ctx, servers)
}

func (m *Manager) apply(ctx context.Context, servers []ServerConfig) error {
	if m.handle != nil {
		if err := m.handle.Shutdown(); err != nil {
			m.opts.Logger.Warn("mcp.shutdown.error", "error", err.Error())
		}
		m.handle = nil
	}

	initCtx, cancel := context.WithTimeout(ctx, m.opts.InitTimeout)
	defer cancel()

	h, err := Init(initCtx, servers, func(o *Options) { o.Logger = m.opts.Logger })
	if err != nil {
		m.registry.ReplaceKind(tool.KindIntegration, nil)
		return fmt.Errorf("mcp: %w", err)
	}

	m.handle = h
	m.servers = servers

	accepted := m.registry.ReplaceKind(tool.KindIntegration, h.Tools())

	m.opts.Logger.Info("mcp.integrations.applied", "servers", len(servers), "connected", len(h.Servers()), "tools", accepted)

	return nil
}

// Servers reports the configured servers and whether each is connected.
func (m *Manager) Servers() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	perServer := map[string]int{}
	connected := map[string]bool{}

	if m.handle != nil {
		for _, name := range m.handle.Servers() {
			connected[name] = true
		}
		for _, t := range m.handle.Tools() {
			if rt, ok := t.(*remoteTool); ok {
				perServer[rt.conn.name]++
			}
		}
	}

	out := make([]ServerStatus, len(m.servers))
	for i, srv := range m.servers {
		out[i] = ServerStatus{
			Name:      srv.Name,
			URL:       srv.URL,
			Connected: connected[srv.Name],
			Tools:     perServer[srv.Name],
		}
	}

	return out
}

// Shutdown closes the current connections and removes the integration
// tools from the registry.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}

	err := m.handle.Shutdown()
	m.handle = nil
	m.registry.ReplaceKind(tool.KindIntegration, nil)

	return err
}
