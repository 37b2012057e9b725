package builtin

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hupe1980/agentd/core"
	"github.com/hupe1980/agentd/tool"
)

// BrowseName is the name of the web retrieval tool.
const BrowseName = "browse_web"

// skipped elements never contribute visible text.
var skipped = map[string]bool{"script": true, "style": true, "noscript": true, "head": true, "svg": true, "template": true}

// BrowseTool fetches a web page with HTTP GET and returns its title and
// visible text.
func (tb *Toolbox) BrowseTool() *tool.FunctionTool {
	return tool.NewFunctionTool(
		BrowseName,
		"Fetch a web page by URL and return its readable text.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "Absolute http or https URL"},
			},
			"required": []string{"url"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			raw := strings.TrimSpace(stringArg(args, "url"))

			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, validationError(BrowseName, errors.New("url must be an absolute http(s) URL"))
			}

			req, err := http.NewRequestWithContext(toolCtx.Context(), http.MethodGet, u.String(), nil)
			if err != nil {
				return nil, fmt.Errorf("create request: %w", err)
			}

			req.Header.Set("User-Agent", tb.opts.UserAgent)
			req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

			resp, err := tb.opts.HTTPClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", u, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
			}

			body := io.LimitReader(resp.Body, tb.opts.MaxBrowseBytes)

			if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
				data, err := io.ReadAll(body)
				if err != nil {
					return nil, fmt.Errorf("read body: %w", err)
				}
				return truncate(string(data), tb.opts.MaxOutputBytes), nil
			}

			title, text, err := extractText(body)
			if err != nil {
				return nil, fmt.Errorf("parse html: %w", err)
			}

			out := text
			if title != "" {
				out = "Title: " + title + "\n\n" + text
			}

			return truncate(out, tb.opts.MaxOutputBytes), nil
		},
	).WithKind(tool.KindBrowse)
}

// extractText walks the parsed document and collects the title and the
// visible text, one block per line.
func extractText(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		title string
		lines []string
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && n.FirstChild != nil && title == "" {
				title = strings.TrimSpace(n.FirstChild.Data)
				return
			}
			if n.Data == "head" {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.Data == "title" {
						walk(c)
					}
				}
				return
			}
			if skipped[n.Data] {
				return
			}
		}

		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				lines = append(lines, t)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return title, strings.Join(lines, "\n"), nil
}
