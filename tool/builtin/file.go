package builtin

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/tool"
)

// Tool names of the file family.
const (
	ReadFileName      = "read_file"
	WriteFileName     = "write_file"
	ListDirectoryName = "list_directory"
	DeleteFileName    = "delete_file"
)

func pathSchema(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": description},
		},
		"required": []string{"path"},
	}
}

// ReadFileTool reads a text file from the workspace.
func (tb *Toolbox) ReadFileTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		ReadFileName,
		"Read the contents of a text file in the workspace.",
		pathSchema("File path relative to the workspace"),
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			path, err := tb.Resolve(stringArg(args, "path"))
			if err != nil {
				return nil, validationError(ReadFileName, err)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", stringArg(args, "path"), err)
			}

			if !utf8.Valid(data) {
				return nil, fmt.Errorf("%s is not a text file", stringArg(args, "path"))
			}

			return truncate(string(data), tb.opts.MaxOutputBytes), nil
		},
	).WithKind(tool.KindFile)
}

// WriteFileTool creates or overwrites (or appends to) a workspace file,
// creating parent directories as needed.
func (tb *Toolbox) WriteFileTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		WriteFileName,
		"Create or overwrite a file in the workspace. Set append to add to the end instead.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string", "description": "File path relative to the workspace"},
				"content": map[string]any{"type": "string", "description": "Text to write"},
				"append":  map[string]any{"type": "boolean", "description": "Append instead of overwrite"},
			},
			"required": []string{"path", "content"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			rel := stringArg(args, "path")

			path, err := tb.Resolve(rel)
			if err != nil {
				return nil, validationError(WriteFileName, err)
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create directory: %w", err)
			}

			content := stringArg(args, "content")

			if boolArg(args, "append") {
				f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
				if err != nil {
					return nil, fmt.Errorf("open %s: %w", rel, err)
				}
				defer f.Close()

				if _, err := f.WriteString(content); err != nil {
					return nil, fmt.Errorf("append %s: %w", rel, err)
				}

				return fmt.Sprintf("Appended %d bytes to %s", len(content), rel), nil
			}

			if err := writeAtomic(path, content); err != nil {
				return nil, fmt.Errorf("write %s: %w", rel, err)
			}

			return fmt.Sprintf("Wrote %d bytes to %s", len(content), rel), nil
		},
	).WithKind(tool.KindFile)
}

// writeAtomic writes through a temp file and a rename.
func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".agentd-tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	_, err = tmp.WriteString(content)
	tmp.Close()

	if err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}

// ListDirectoryTool lists the entries of a workspace directory.
func (tb *Toolbox) ListDirectoryTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		ListDirectoryName,
		"List files and directories at a path in the workspace.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Directory path relative to the workspace, defaults to the root"},
			},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			rel := stringArg(args, "path")

			path, err := tb.Resolve(rel)
			if err != nil {
				return nil, validationError(ListDirectoryName, err)
			}

			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", rel, err)
			}

			if len(entries) == 0 {
				return "<empty directory>", nil
			}

			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				switch {
				case e.IsDir():
					lines = append(lines, e.Name()+"/")
				case e.Type()&fs.ModeSymlink != 0:
					lines = append(lines, e.Name()+"@")
				default:
					info, err := e.Info()
					if err != nil {
						continue
					}
					lines = append(lines, fmt.Sprintf("%s (%d bytes)", e.Name(), info.Size()))
				}
			}

			sort.Strings(lines)

			return strings.Join(lines, "\n"), nil
		},
	).WithKind(tool.KindFile)
}

// DeleteFileTool removes a single file. Directories are refused.
func (tb *Toolbox) DeleteFileTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		DeleteFileName,
		"Delete a single file in the workspace. Destructive: confirm with the user first.",
		pathSchema("File path relative to the workspace"),
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			rel := stringArg(args, "path")

			path, err := tb.Resolve(rel)
			if err != nil {
				return nil, validationError(DeleteFileName, err)
			}

			if path == tb.workdir {
				return nil, validationError(DeleteFileName, errors.New("refusing to delete the workspace root"))
			}

			info, err := os.Lstat(path)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", rel, err)
			}

			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", rel)
			}

			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("delete %s: %w", rel, err)
			}

			return fmt.Sprintf("Deleted %s", rel), nil
		},
	).WithKind(tool.KindFile)
}
