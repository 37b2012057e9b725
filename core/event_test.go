package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEvent_WireShape(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"progress", NewProgressEvent("r", 1, 3, "Opening terminal"), `{"type":"progress","step":1,"total":3,"message":"Opening terminal"}`},
		{"response", NewResponseEvent("r", "File X created."), `{"type":"response","content":"File X created."}`},
		{"empty response keeps content", NewResponseEvent("r", ""), `{"type":"response","content":""}`},
		{"error", NewErrorEvent("r", errors.New("boom")), `{"type":"error","message":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tt.want {
				t.Fatalf("got %s want %s", b, tt.want)
			}
		})
	}
}

func TestEvent_IsTerminal(t *testing.T) {
	if NewProgressEvent("r", 1, 1, "x").IsTerminal() {
		t.Fatal("progress must not be terminal")
	}
	if !NewResponseEvent("r", "ok").IsTerminal() || !NewErrorEvent("r", errors.New("x")).IsTerminal() {
		t.Fatal("response and error must be terminal")
	}
}
