package builtin

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/tool"
)

// ShellName is the name of the shell tool.
const ShellName = "run_shell_command"

// ShellTool runs a command through sh -c inside the workspace. Stdout is
// returned as is; stderr lines are prefixed with [stderr]; a non-zero exit
// code is appended. Exceeding the timeout yields a TIMEOUT tool error.
func (tb *Toolbox) ShellTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		ShellName,
		"Run a non-interactive shell command in the workspace and return its output.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string", "description": "Command line passed to sh -c"},
			},
			"required": []string{"command"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			command := strings.TrimSpace(stringArg(args, "command"))
			if command == "" {
				return nil, validationError(ShellName, errors.New("command must be a non-empty string"))
			}

			return tb.execute(toolCtx.Context(), command)
		},
	).WithKind(tool.KindShell)
}

func (tb *Toolbox) execute(parent context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, tb.opts.ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = tb.workdir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &tool.ToolError{
				Tool:    ShellName,
				Message: fmt.Sprintf("command timed out after %.1f seconds", tb.opts.ShellTimeout.Seconds()),
				Code:    tool.CodeTimeout,
			}
		}
		return "", ctx.Err()
	}

	var parts []string
	if s := stdout.String(); s != "" {
		parts = append(parts, s)
	}

	if s := strings.TrimSpace(stderr.String()); s != "" {
		for _, line := range strings.Split(s, "\n") {
			parts = append(parts, "[stderr] "+line)
		}
	}

	output := "<no output>"
	if len(parts) > 0 {
		output = strings.Join(parts, "\n")
	}

	output = truncate(output, tb.opts.MaxOutputBytes)

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("execute command: %w", err)
		}

		output = strings.TrimRight(output, "\n") + fmt.Sprintf("\n\nExit code: %d", exitErr.ExitCode())
	}

	return output, nil
}
