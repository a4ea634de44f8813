// Package server provides the HTTP API that drives assessment sessions for
// browser clients.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/assessment"
	"github.com/jonathan/assessment-wizard/internal/db"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// ErrSessionNotFound is returned for unknown sessions and for sessions owned
// by another user.
var ErrSessionNotFound = errors.New("session not found")

// ErrValidation indicates request validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		transition *wizard.TransitionError
		analysis   *wizard.AnalysisFailedError
		apiErr     *apiclient.APIError
		decodeErr  *apiclient.DecodeError
	)
	switch {
	case errors.As(err, &validation),
		errors.Is(err, assessment.ErrInvalidFile),
		errors.Is(err, types.ErrAnswerIndex),
		errors.Is(err, interview.ErrEmptyAnswer),
		errors.Is(err, wizard.ErrPathNotSelected),
		errors.Is(err, media.ErrNoFrame),
		errors.Is(err, media.ErrNoAudio):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apiclient.ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, assessment.ErrBusy),
		errors.Is(err, interview.ErrTurnInFlight),
		errors.Is(err, db.ErrConflict),
		errors.As(err, &transition),
		errors.Is(err, assessment.ErrIncomplete),
		errors.Is(err, wizard.ErrNoSession),
		errors.Is(err, wizard.ErrQuestionsMissing),
		errors.Is(err, wizard.ErrNoPredecessor),
		errors.Is(err, interview.ErrAlreadyStarted),
		errors.Is(err, interview.ErrNotStarted),
		errors.Is(err, interview.ErrFinished),
		errors.Is(err, interview.ErrNotFinal),
		errors.Is(err, interview.ErrClosed),
		errors.Is(err, media.ErrStopped):
		return http.StatusConflict
	case errors.As(err, &analysis),
		errors.Is(err, transcribe.ErrManualInput),
		errors.Is(err, media.ErrPermissionDenied),
		errors.Is(err, media.ErrNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assessment.ErrReportsDisabled),
		errors.Is(err, reports.ErrNoPrinter),
		errors.Is(err, transcribe.ErrNoProvider),
		errors.Is(err, media.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &apiErr):
		// The caller's credentials were rejected upstream.
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &decodeErr), errors.Is(err, assessment.ErrNoScore):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
