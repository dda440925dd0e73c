package domain

import "errors"

// Sentinel errors for the answer pipeline, one per taxonomy entry.
// Components wrap these with context so callers can classify with errors.Is.
var (
	// ErrManualNotFound means there is no reference or no retrievable file.
	ErrManualNotFound = errors.New("manual not found")
	// ErrFetchFailed means a download was attempted and failed (network,
	// timeout, bad status, or write error). Distinct from ErrManualNotFound.
	ErrFetchFailed = errors.New("manual fetch failed")
	// ErrIndexLoadFailed means a persisted index exists but could not be read.
	ErrIndexLoadFailed = errors.New("index load failed")
	// ErrIndexBuildFailed means parsing or embedding failed while building.
	ErrIndexBuildFailed = errors.New("index build failed")
	// ErrGenerationFailed means the text-generation call errored or returned
	// unusable output.
	ErrGenerationFailed = errors.New("generation failed")
)

// Validation sentinels.
var (
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrQuestionTooLong = errors.New("question too long")
	ErrInvalidRole     = errors.New("invalid conversation role")
)

// KindOf maps a pipeline error onto its ErrorKind. Unrecognised errors
// classify as generation failures, the last stage that can propagate.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrManualNotFound):
		return ErrorKindManualNotFound
	case errors.Is(err, ErrFetchFailed):
		return ErrorKindFetchFailed
	case errors.Is(err, ErrIndexLoadFailed):
		return ErrorKindIndexLoadFailed
	case errors.Is(err, ErrIndexBuildFailed):
		return ErrorKindIndexBuildFailed
	default:
		return ErrorKindGenerationFailed
	}
}
