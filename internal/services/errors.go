package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindParseFailure     ErrorKind = "parse_failure"
	KindAssetUnreadable  ErrorKind = "asset_unreadable"
	KindSynthesisFailure ErrorKind = "synthesis_failure"
	KindEncodingFailure  ErrorKind = "encoding_failure"
	KindTimelineEmpty    ErrorKind = "timeline_empty"
)

var (
	// ErrEmptyScript is returned when a script is blank after trimming.
	ErrEmptyScript = errors.New("script is empty")

	// ErrNoScenes is returned when a non-blank script yields no scene with text.
	ErrNoScenes = errors.New("script contains no scenes with text")

	// ErrTimelineEmpty is returned when asked to concatenate zero clips.
	ErrTimelineEmpty = errors.New("no scene clips to concatenate")
)

// StageError is a stage-aware failure with a taxonomy kind.
type StageError struct {
	Kind    ErrorKind
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewStageError(kind ErrorKind, stage, message string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Message: message, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	return ""
}
