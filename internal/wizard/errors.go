package wizard

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by wizard operations.
var (
	ErrNoPredecessor    = errors.New("welcome has no previous step")
	ErrPathNotSelected  = errors.New("no assessment path selected")
	ErrMissingResumeID  = errors.New("no resume ID returned from upload")
	ErrAnalysisPending  = errors.New("resume analysis has not finished")
	ErrQuestionsMissing = errors.New("questions have not been generated")
	ErrResultMissing    = errors.New("section has no evaluation result")
	ErrNoSession        = errors.New("interview session has not started")
	ErrNotFinal         = errors.New("interview has not reached its final turn")
	ErrInvalidState     = errors.New("invalid wizard state")
)

// TransitionError is returned when an operation is not allowed on the current step.
type TransitionError struct {
	From Step
	Op   Op
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from step %s", e.Op, e.From)
}

// AnalysisFailedError reports a resume analysis that ended in FAILED.
type AnalysisFailedError struct {
	Message string
}

func (e *AnalysisFailedError) Error() string {
	if e.Message == "" {
		return "resume analysis failed"
	}
	return fmt.Sprintf("resume analysis failed: %s", e.Message)
}
