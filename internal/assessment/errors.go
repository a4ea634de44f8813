package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

var (
	// ErrBusy is returned while another remote call is in flight.
	ErrBusy = errors.New("another request is in progress")
	// ErrInvalidFile is returned for a resume of the wrong type or size.
	ErrInvalidFile = errors.New("invalid resume file")
	// ErrNoScore is returned when an evaluation carries no usable score.
	ErrNoScore = errors.New("evaluation returned no score")
	// ErrIncomplete is returned when the final question of a section is unanswered.
	ErrIncomplete = errors.New("final question has not been answered")
)

// UserMessage converts an error into a message for the candidate.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		apiErr        *apiclient.APIError
		decodeErr     *apiclient.DecodeError
		transitionErr *wizard.TransitionError
		analysisErr   *wizard.AnalysisFailedError
	)
	switch {
	case errors.Is(err, ErrBusy):
		return "Please wait for the current request to finish."
	case errors.Is(err, ErrInvalidFile):
		return fmt.Sprintf("%s. Please upload a PDF, DOC or DOCX file up to 10 MB.", err.Error())
	case errors.Is(err, ErrIncomplete):
		return "Please answer the question before submitting."
	case errors.Is(err, ErrNoScore):
		return "The evaluation did not return a score. Please submit again."
	case errors.Is(err, media.ErrPermissionDenied),
		errors.Is(err, media.ErrNotFound),
		errors.Is(err, media.ErrUnsupported):
		return media.UserMessage(err)
	case errors.Is(err, transcribe.ErrManualInput):
		return "We couldn't transcribe your answer automatically. Please type it instead."
	case errors.Is(err, transcribe.ErrNoProvider):
		return "Voice answers are not available. Please type your answer."
	case errors.Is(err, interview.ErrTurnInFlight):
		return "Your previous answer is still being processed."
	case errors.Is(err, interview.ErrEmptyAnswer):
		return "Please enter an answer before sending."
	case errors.Is(err, interview.ErrFinished):
		return "The interview is already complete."
	case errors.Is(err, interview.ErrNotFinal):
		return "The interview is still in progress."
	case errors.Is(err, wizard.ErrNoSession), errors.Is(err, interview.ErrNotStarted):
		return "Start the interview first."
	case errors.Is(err, wizard.ErrQuestionsMissing):
		return "Generate the questions first."
	case errors.Is(err, types.ErrAnswerIndex):
		return "That question does not exist."
	case errors.Is(err, wizard.ErrNoPredecessor):
		return "You are already on the first step."
	case errors.Is(err, apiclient.ErrRequestTooLarge):
		return "Request data too large, please try again."
	case errors.As(err, &analysisErr):
		return analysisErr.Error()
	case errors.As(err, &transitionErr):
		return fmt.Sprintf("You can't %s on the %s step.", transitionErr.Op, transitionErr.From.Title())
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.As(err, &decodeErr):
		return "The assessment service returned an unexpected response. Please try again."
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}
	return err.Error()
}
