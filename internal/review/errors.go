package review

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrSearch     = errors.New("search failed")
	ErrDownload   = errors.New("download failed")
	ErrExtraction = errors.New("extraction failed")
	ErrGeneration = errors.New("generation failed")
)

// ErrNoDraft is returned by Runner.Revise for a run without a draft.
var ErrNoDraft = errors.New("run has no draft to revise")

// StepError is a failure inside one step, optionally for one paper.
type StepError struct {
	Kind    error
	Step    string
	PaperID string
	Err     error
}

func (e *StepError) Error() string {
	msg := e.Step + ": " + e.Kind.Error()
	if e.PaperID != "" {
		msg += " for paper " + e.PaperID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stepErr(kind error, step, paperID string, err error) *StepError {
	return &StepError{Kind: kind, Step: step, PaperID: paperID, Err: err}
}

// PipelineError is a fatal failure of a run. State holds everything merged
// before the failing step and can be passed back to Runner.Run to retry it.
type PipelineError struct {
	Step  string
	State State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Step, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
