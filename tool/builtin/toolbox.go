package builtin

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/agentd/tool"
)

// Options configures the built-in toolbox.
type Options struct {
	// Workdir is the workspace root. Defaults to the current directory.
	Workdir string
	// ShellTimeout bounds a single shell command.
	ShellTimeout time.Duration
	// MaxOutputBytes caps text returned by shell and file reads.
	MaxOutputBytes int
	// EnableShell registers run_shell_command.
	EnableShell bool
	// EnableBrowse registers browse_web.
	EnableBrowse bool
	// HTTPClient is used by browse_web.
	HTTPClient *http.Client
	// MaxBrowseBytes caps the downloaded page size.
	MaxBrowseBytes int64
	// UserAgent is sent by browse_web.
	UserAgent string
}

// Toolbox owns the workspace and hands out the built-in tools.
type Toolbox struct {
	workdir string
	opts    Options
}

// New creates a toolbox rooted at Options.Workdir, creating it if needed.
func New(optFns ...func(o *Options)) (*Toolbox, error) {
	opts := Options{
		ShellTimeout:   60 * time.Second,
		MaxOutputBytes: 100_000,
		EnableShell:    true,
		EnableBrowse:   true,
		HTTPClient:     &http.Client{Timeout: 30 * time.Second},
		MaxBrowseBytes: 2 << 20,
		UserAgent:      "agentd/1.0",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	workdir := opts.Workdir
	if workdir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workdir: %w", err)
		}
		workdir = wd
	}

	abs, err := filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}

	return &Toolbox{workdir: abs, opts: opts}, nil
}

// Workdir returns the absolute workspace root.
func (tb *Toolbox) Workdir() string { return tb.workdir }

// Tools returns the enabled tools in catalog order: file operations first,
// then the terminal, then the browser.
func (tb *Toolbox) Tools() []tool.Tool {
	tools := []tool.Tool{
		tb.ReadFileTool(),
		tb.WriteFileTool(),
		tb.ListDirectoryTool(),
		tb.DeleteFileTool(),
	}

	if tb.opts.EnableShell {
		tools = append(tools, tb.ShellTool())
	}

	if tb.opts.EnableBrowse {
		tools = append(tools, tb.BrowseTool())
	}

	return tools
}

// Resolve maps a workspace-relative (or absolute, inside the workspace)
// path to an absolute path. Paths escaping the workspace are rejected.
func (tb *Toolbox) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = "."
	}

	var joined string
	if filepath.IsAbs(path) {
		joined = filepath.Clean(path)
	} else {
		joined = filepath.Join(tb.workdir, path)
	}

	rel, err := filepath.Rel(tb.workdir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", path)
	}

	return joined, nil
}

// truncate caps s at max bytes and notes the cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}

	return s[:max] + fmt.Sprintf("\n\n... Output truncated at %d bytes.", max)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func validationError(name string, err error) *tool.ToolError {
	return &tool.ToolError{Tool: name, Message: err.Error(), Code: tool.CodeValidation}
}
