package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateQuestion(t *testing.T) {
	cases := []struct {
		name     string
		question string
		wantErr  error
	}{
		{"ok", "How do I prime the line?", nil},
		{"empty", "", ErrEmptyQuestion},
		{"whitespace only", "   \n\t", ErrEmptyQuestion},
		{"too long", strings.Repeat("x", 2001), ErrQuestionTooLong},
		{"at limit", strings.Repeat("x", 2000), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuestion(tc.question)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateHistory(t *testing.T) {
	ok := []ConversationTurn{
		{Role: RoleUser, Content: "what about the alarm?"},
		{Role: RoleAssistant, Content: "press silence for 2 minutes"},
	}
	if err := ValidateHistory(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []ConversationTurn{{Role: "system", Content: "x"}}
	if err := ValidateHistory(bad); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("got %v, want ErrInvalidRole", err)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ErrorKindNone},
		{ErrManualNotFound, ErrorKindManualNotFound},
		{ErrFetchFailed, ErrorKindFetchFailed},
		{ErrIndexLoadFailed, ErrorKindIndexLoadFailed},
		{ErrIndexBuildFailed, ErrorKindIndexBuildFailed},
		{errors.New("some provider error"), ErrorKindGenerationFailed},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIndexable(t *testing.T) {
	if (ManualReference{RemoteURL: "https://x/y.pdf"}).Indexable() {
		t.Error("reference without local path must not be indexable")
	}
	if !(ManualReference{LocalPath: "manuals/y.pdf"}).Indexable() {
		t.Error("reference with local path must be indexable")
	}
}
