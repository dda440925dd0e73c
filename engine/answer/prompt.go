package answer

import (
	"strings"

	"github.com/MedManualAI/medmanual-mvp/engine/domain"
)

// buildPrompt assembles the generation prompt: retrieved passages as
// grounding context, the trailing conversation window when present, and the
// current question with instructions tying the model to the supplied context.
func buildPrompt(passages []domain.RetrievedPassage, history []domain.ConversationTurn, question string) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	contextStr := strings.Join(texts, "\n\n")

	var b strings.Builder
	b.WriteString("Based on the following information from the device manual:\n\n")
	b.WriteString(contextStr)
	b.WriteString("\n\n")

	if len(history) == 0 {
		b.WriteString("Question: ")
		b.WriteString(question)
		b.WriteString("\n\nPlease provide an accurate, helpful answer based on the manual information above.")
		return b.String()
	}

	b.WriteString(renderHistory(history))
	b.WriteString("\n")
	b.WriteString("Current question: ")
	b.WriteString(question)
	b.WriteString("\n\nIMPORTANT: Answer the current question based on the manual information above.\n")
	b.WriteString("- If this is a follow-up question (e.g., \"what about...\", \"and how do I...\"), use the conversation history for context.\n")
	b.WriteString("- If this is a NEW TOPIC unrelated to the previous conversation, ignore the history and answer based solely on the manual.\n")
	b.WriteString("- Provide accurate, helpful information.")
	return b.String()
}

// renderHistory renders the last HistoryWindow turns as a labeled transcript.
func renderHistory(history []domain.ConversationTurn) string {
	if len(history) > domain.HistoryWindow {
		history = history[len(history)-domain.HistoryWindow:]
	}
	var b strings.Builder
	b.WriteString("Previous conversation for reference:\n")
	for _, t := range history {
		label := "Assistant"
		if t.Role == domain.RoleUser {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}
