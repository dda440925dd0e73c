package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxQuestionRunes = 2000

// ValidateQuestion checks a user question at the pipeline boundary.
func ValidateQuestion(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return ErrEmptyQuestion
	}
	if utf8.RuneCountInString(q) > maxQuestionRunes {
		return fmt.Errorf("%w: %d runes (max %d)", ErrQuestionTooLong, utf8.RuneCountInString(q), maxQuestionRunes)
	}
	return nil
}

// ValidateHistory checks conversation turns. Empty-content turns are allowed
// and simply contribute nothing to the rendered transcript.
func ValidateHistory(turns []ConversationTurn) error {
	for i, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: turn %d has role %q", ErrInvalidRole, i, t.Role)
		}
	}
	return nil
}
