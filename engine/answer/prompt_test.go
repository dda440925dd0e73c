package answer

import (
	"strings"
	"testing"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
)

func TestBuildPrompt_NoHistory(t *testing.T) {
	passages := []domain.RetrievedPassage{
		{Text: "Prime the line."},
		{Text: "Open the clamp."},
	}
	got := buildPrompt(passages, nil, "How do I prime?")

	if !strings.HasPrefix(got, "Based on the following information from the device manual:") {
		t.Error("prompt missing grounding preamble")
	}
	if !strings.Contains(got, "Prime the line.\n\nOpen the clamp.") {
		t.Error("passages not joined with blank lines")
	}
	if !strings.Contains(got, "Question: How do I prime?") {
		t.Error("prompt missing question")
	}
	if strings.Contains(got, "Previous conversation") {
		t.Error("history block rendered without history")
	}
	if strings.Contains(got, "Current question:") {
		t.Error("history-form question label used without history")
	}
}

func TestBuildPrompt_WithHistory(t *testing.T) {
	history := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "How do I prime the line?"},
		{Role: domain.RoleAssistant, Content: "Open the clamp and run fluid through."},
	}
	got := buildPrompt([]domain.RetrievedPassage{{Text: "ctx"}}, history, "What about air bubbles?")

	if !strings.Contains(got, "Previous conversation for reference:\nUser: How do I prime the line?\nAssistant: Open the clamp and run fluid through.\n") {
		t.Error("history transcript not rendered with role labels")
	}
	if !strings.Contains(got, "Current question: What about air bubbles?") {
		t.Error("prompt missing current question")
	}
	if !strings.Contains(got, "If this is a NEW TOPIC unrelated to the previous conversation, ignore the history") {
		t.Error("prompt missing new-topic instruction")
	}
}

func TestRenderHistory_Window(t *testing.T) {
	var history []domain.ConversationTurn
	for _, content := range []string{"one", "two", "three", "four", "five", "six"} {
		history = append(history, domain.ConversationTurn{Role: domain.RoleUser, Content: content})
	}
	got := renderHistory(history)

	for _, dropped := range []string{"one", "two"} {
		if strings.Contains(got, dropped) {
			t.Errorf("turn %q should fall outside the %d-turn window", dropped, domain.HistoryWindow)
		}
	}
	for _, kept := range []string{"three", "four", "five", "six"} {
		if !strings.Contains(got, kept) {
			t.Errorf("turn %q missing from window", kept)
		}
	}
}
