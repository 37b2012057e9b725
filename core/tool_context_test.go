package core

import (
	"context"
	"testing"

	"github.com/hupe1980/agentd/logging"
)

func TestToolContext_Accessors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := NewToolContext(ctx, "sess", "run", "call-1", nil)

	if tc.SessionID() != "sess" || tc.RunID() != "run" || tc.ToolCallID() != "call-1" {
		t.Fatalf("unexpected identifiers: %s %s %s", tc.SessionID(), tc.RunID(), tc.ToolCallID())
	}
	if _, ok := tc.Logger().(logging.NoOpLogger); !ok {
		t.Fatalf("nil logger should fall back to NoOpLogger, got %T", tc.Logger())
	}

	cancel()
	select {
	case <-tc.Context().Done():
	default:
		t.Fatal("tool context should observe cancellation")
	}
}
