package conversation_test

import (
	"testing"

	"github.com/MrWong99/oculus/internal/conversation"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/tts"
)

func TestHistory_AppendPair(t *testing.T) {
	t.Parallel()
	var h conversation.History
	h.AppendPair("q1", "a1")
	h.AppendPair("q2", "a2")

	turns := h.Turns()
	if len(turns) != 4 {
		t.Fatalf("turns: got %d, want 4", len(turns))
	}
	for i, turn := range turns {
		want := llm.RoleUser
		if i%2 == 1 {
			want = llm.RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("turn %d role: got %q, want %q", i, turn.Role, want)
		}
	}
	if turns[3].Text != "a2" {
		t.Errorf("last turn: got %q", turns[3].Text)
	}
}

func TestHistory_TurnsIsCopy(t *testing.T) {
	t.Parallel()
	var h conversation.History
	h.AppendPair("q", "a")
	turns := h.Turns()
	turns[0].Text = "changed"
	if h.Turns()[0].Text != "q" {
		t.Error("mutating the returned slice changed the history")
	}
}

func TestHistory_Messages(t *testing.T) {
	t.Parallel()
	var h conversation.History
	h.AppendPair("q", "a")
	msgs := h.Messages()
	if len(msgs) != 2 || msgs[0].Role != llm.RoleUser || msgs[1].Content != "a" {
		t.Errorf("messages: got %+v", msgs)
	}
}

func TestNewSession(t *testing.T) {
	t.Parallel()
	a := conversation.NewSession("p", tts.Voice{ID: "alloy"})
	b := conversation.NewSession("p", tts.Voice{ID: "alloy"})
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("session IDs should be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.History == nil || a.History.Len() != 0 {
		t.Error("new session should have an empty history")
	}
	if a.SystemPrompt() != "p" || a.Voice().ID != "alloy" {
		t.Error("persona not stored")
	}
}
