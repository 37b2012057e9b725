package progress

import (
	"context"
	"time"
)

// StaticGenerator is a model.TextGenerator returning a fixed reply. It backs
// tests and deployments without a narration model.
type StaticGenerator struct {
	Text  string
	Err   error
	Delay time.Duration
}

// GenerateText implements model.TextGenerator.
func (g StaticGenerator) GenerateText(ctx context.Context, _ string) (string, error) {
	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if g.Err != nil {
		return "", g.Err
	}

	return g.Text, nil
}
