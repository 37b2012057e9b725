package core

import (
	"strings"
	"testing"
)

func TestSession_NewAndClone(t *testing.T) {
	s := NewSession("s1", "")
	if s.Title != DefaultSessionTitle || !s.HasDefaultTitle() {
		t.Fatalf("expected default title, got %q", s.Title)
	}
	s.Messages = append(s.Messages, NewHumanMessage("hi"))

	clone := s.Clone()
	if clone == s {
		t.Error("Clone should be a different pointer")
	}
	clone.Messages = append(clone.Messages, NewAssistantMessage("hello"))
	if len(s.Messages) != 1 {
		t.Error("Original should not see clone's appended message")
	}
}

func TestDeriveTitle(t *testing.T) {
	if got := DeriveTitle("  create file X \nplease"); got != "create file X" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := DeriveTitle("   "); got != DefaultSessionTitle {
		t.Fatalf("blank text should give default title, got %q", got)
	}
	long := strings.Repeat("ä", 100)
	got := DeriveTitle(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != maxTitleRunes {
		t.Fatalf("long title not truncated: %q (%d runes)", got, len([]rune(got)))
	}
}
