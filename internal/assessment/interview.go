package assessment

import (
	"context"
	"errors"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// interviewRecord is the stored interview data.
type interviewRecord struct {
	wizard.InterviewPayload
	Completion *interview.Completion `json:"completion,omitempty"`
}

// interviewRequest builds the start request from the committed role.
func (c *Coordinator) interviewRequest() types.InterviewRequest {
	role, _ := c.profile()
	d := c.defaults
	return types.InterviewRequest{
		InterviewType:      d.InterviewType,
		Position:           apiclient.SanitizeRole(role),
		ExperienceLevel:    d.Level,
		PreferredLanguage:  d.PreferredLanguage,
		Mode:               d.InterviewMode,
		Industry:           d.Industry,
		CompanyTemplate:    d.CompanyTemplate,
		CustomInstructions: d.CustomInstructions,
		UserID:             d.UserID,
	}
}

// StartInterview acquires the camera and microphone and opens an interview
// session. A media failure leaves the wizard on the interview step without a
// session.
func (c *Coordinator) StartInterview(ctx context.Context) (*types.InterviewStart, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	err = c.wiz.Require(wizard.OpStartInterview)
	current, _ := c.wiz.Interview()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if current.SessionID != "" {
		return nil, interview.ErrAlreadyStarted
	}

	_, skills := c.profile()
	device := c.devices()
	ctrl, err := interview.New(interview.Options{
		API:           c.api,
		Device:        device,
		FrameInterval: c.frameInterval,
		Skills:        skills,
		Logger:        c.logger,
		Now:           c.now,
	})
	if err != nil {
		return nil, err
	}
	start, err := ctrl.Start(ctx, c.interviewRequest())
	if err != nil {
		ctrl.Close()
		return nil, c.fail(wizard.StepInterview, err)
	}

	first := types.Turn{Type: types.TurnQuestion, Content: start.FirstQuestion, Timestamp: c.now()}
	if err := c.transition(ctx, func(w *wizard.Wizard) error { return w.BeginInterview(start.SessionID, first) }); err != nil {
		ctrl.Close()
		return nil, err
	}

	c.mu.Lock()
	c.iv, c.device, c.completion = ctrl, device, nil
	payload, _ := c.wiz.Interview()
	c.mu.Unlock()
	c.persist(ctx, store.KeyInterview, interviewRecord{InterviewPayload: payload})
	return start, nil
}

func (c *Coordinator) controller() (*interview.Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completion != nil {
		return nil, interview.ErrFinished
	}
	if c.iv == nil {
		return nil, wizard.ErrNoSession
	}
	return c.iv, nil
}

// Reply sends the candidate's answer. It holds the coordinator's busy slot;
// overlapping turns on the controller return interview.ErrTurnInFlight. Once
// the remote session sent its final turn, Reply ignores text and finishes
// gathering the closing analysis, like FinishInterview.
func (c *Coordinator) Reply(ctx context.Context, text string) (*interview.Turn, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.require(wizard.OpReply); err != nil {
		return nil, err
	}
	ctrl, err := c.controller()
	if err != nil {
		return nil, err
	}
	if ctrl.Finished() {
		return c.finish(ctx, ctrl)
	}
	turn, err := ctrl.Reply(ctx, text)
	if err != nil {
		return nil, c.turnFailed(ctx, ctrl, err)
	}
	return c.recordTurn(ctx, ctrl, turn)
}

// FinishInterview gathers the closing analysis when the final turn was
// reached but its completion was interrupted.
func (c *Coordinator) FinishInterview(ctx context.Context) (*interview.Turn, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.require(wizard.OpReply); err != nil {
		return nil, err
	}
	ctrl, err := c.controller()
	if err != nil {
		return nil, err
	}
	return c.finish(ctx, ctrl)
}

// InterviewFinished reports whether the remote session ended while its
// closing analysis is still missing.
func (c *Coordinator) InterviewFinished() bool {
	c.mu.Lock()
	iv, completion := c.iv, c.completion
	c.mu.Unlock()
	return completion == nil && iv != nil && iv.Finished()
}

func (c *Coordinator) finish(ctx context.Context, ctrl *interview.Controller) (*interview.Turn, error) {
	turn, err := ctrl.Complete(ctx)
	if err != nil {
		return nil, c.turnFailed(ctx, ctrl, err)
	}
	return c.recordTurn(ctx, ctrl, turn)
}

// turnFailed keeps the turns the controller already accepted, so a final
// answer survives an interrupted completion.
func (c *Coordinator) turnFailed(ctx context.Context, ctrl *interview.Controller, err error) error {
	if errors.Is(err, interview.ErrTurnInFlight) {
		return err
	}
	if ctrl.Finished() {
		// Written even when ctx was cancelled mid-completion.
		ctx = context.WithoutCancel(ctx)
		history := ctrl.History()
		if terr := c.transition(ctx, func(w *wizard.Wizard) error { return recordHistory(w, history) }); terr == nil {
			c.mu.Lock()
			payload, _ := c.wiz.Interview()
			c.mu.Unlock()
			c.persist(ctx, store.KeyInterview, interviewRecord{InterviewPayload: payload})
		}
	}
	return c.fail(wizard.StepInterview, err)
}

func recordHistory(w *wizard.Wizard, history []types.Turn) error {
	payload, _ := w.Interview()
	if len(history) > len(payload.History) {
		return w.RecordTurns(history[len(payload.History):]...)
	}
	return nil
}

func (c *Coordinator) recordTurn(ctx context.Context, ctrl *interview.Controller, turn *interview.Turn) (*interview.Turn, error) {
	history := ctrl.History()
	err := c.transition(ctx, func(w *wizard.Wizard) error {
		if err := recordHistory(w, history); err != nil {
			return err
		}
		if turn.Completion == nil {
			return nil
		}
		return w.CompleteInterview(wizard.InterviewPayload{Final: true, Analysis: turn.Completion.Analysis})
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	payload, _ := c.wiz.Interview()
	if turn.Completion != nil {
		c.completion = turn.Completion
	}
	c.mu.Unlock()
	c.persist(ctx, store.KeyInterview, interviewRecord{InterviewPayload: payload, Completion: turn.Completion})

	if turn.Completion != nil {
		e := events.New(c.id, events.TypeInterviewComplete)
		e.Data = turn.Completion.Analysis
		c.publish(ctx, e)
		// Capture already stopped; drop the controller's remaining resources.
		c.closeInterview()
	} else {
		e := events.New(c.id, events.TypeInterviewTurn)
		e.Data = map[string]any{"turns": len(payload.History), "next_question": turn.Reply.NextQuestion}
		c.publish(ctx, e)
	}
	return turn, nil
}

// Listen records the next spoken answer and transcribes it. The caller sends
// the text with Reply, or asks for typed input on transcribe.ErrManualInput.
func (c *Coordinator) Listen(ctx context.Context) (transcribe.Result, error) {
	if c.transcriber == nil {
		return transcribe.Result{}, transcribe.ErrNoProvider
	}
	release, err := c.acquire()
	if err != nil {
		return transcribe.Result{}, err
	}
	defer release()

	ctrl, err := c.controller()
	if err != nil {
		return transcribe.Result{}, err
	}
	return ctrl.Listen(ctx, c.transcriber)
}

// pusher is implemented by devices fed by a remote client.
type pusher interface {
	PushFrame(jpeg []byte) error
	PushAudio(a media.Audio) error
}

func (c *Coordinator) pushDevice() (pusher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return nil, wizard.ErrNoSession
	}
	p, ok := c.device.(pusher)
	if !ok {
		return nil, media.ErrUnsupported
	}
	return p, nil
}

// PushFrame hands a camera frame from a remote client to the interview.
func (c *Coordinator) PushFrame(jpeg []byte) error {
	p, err := c.pushDevice()
	if err != nil {
		return err
	}
	return p.PushFrame(jpeg)
}

// PushAudio hands a recorded answer from a remote client to the interview.
func (c *Coordinator) PushAudio(a media.Audio) error {
	p, err := c.pushDevice()
	if err != nil {
		return err
	}
	return p.PushAudio(a)
}

// InterviewMetrics returns the latest body-language analysis.
func (c *Coordinator) InterviewMetrics() *types.FrameMetrics {
	c.mu.Lock()
	iv, completion := c.iv, c.completion
	c.mu.Unlock()
	if iv != nil {
		return iv.Metrics()
	}
	if completion != nil {
		return completion.Metrics
	}
	return nil
}

// Completion returns the closing interview analysis once available.
func (c *Coordinator) Completion() (*interview.Completion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completion, c.completion != nil
}
