// Package domain defines core value types, sentinel errors, and boundary
// validation for the medmanual answer pipeline.
package domain

// ManualReference identifies the documentation source for one device model.
// Manufacturer and Model are already-resolved lookup keys; fuzzy matching
// happens upstream in the serving layer.
type ManualReference struct {
	Manufacturer string `json:"manufacturer" yaml:"-"`
	Model        string `json:"model" yaml:"-"`
	RemoteURL    string `json:"remote_url,omitempty" yaml:"remote"`
	LocalPath    string `json:"local_path" yaml:"local"`
}

// Indexable reports whether the reference can ever be indexed.
// A reference without a local path has nowhere to land on disk.
func (r ManualReference) Indexable() bool { return r.LocalPath != "" }

// Role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior message in an ongoing chat. Only the most
// recent HistoryWindow turns are ever considered for follow-up context.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// HistoryWindow is the number of trailing turns (2 exchanges) used when
// rendering conversation history into a prompt.
const HistoryWindow = 4

// RetrievedPassage is one similarity hit against an indexed manual.
// Text is truncated for display; the full chunk text is used for generation.
type RetrievedPassage struct {
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	PageLabel string  `json:"page,omitempty"`
}

// ImageRecord is one raster image extracted from a manual page.
type ImageRecord struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	PageLabel string `json:"page"`
}

// ErrorKind classifies a failed answer for the serving layer's fallback logic.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindManualNotFound   ErrorKind = "manual_not_found"
	ErrorKindFetchFailed      ErrorKind = "fetch_failed"
	ErrorKindIndexLoadFailed  ErrorKind = "index_load_failed"
	ErrorKindIndexBuildFailed ErrorKind = "index_build_failed"
	ErrorKindGenerationFailed ErrorKind = "generation_failed"
)

// AnswerResult is the structured outcome of one question, success or failure.
// On failure Answer is empty, ErrorKind is set, and Error carries a
// human-readable explanation; Sources and Images are empty and Confidence is 0.
type AnswerResult struct {
	Answer     string             `json:"answer"`
	Error      string             `json:"error,omitempty"`
	ErrorKind  ErrorKind          `json:"error_kind,omitempty"`
	Sources    []RetrievedPassage `json:"sources"`
	Confidence float64            `json:"confidence"`
	Images     []ImageRecord      `json:"images"`
}

// Failed reports whether the result is a structured failure.
func (r AnswerResult) Failed() bool { return r.ErrorKind != ErrorKindNone }
