// Package interview runs an AI interview session: it holds the camera and
// microphone, samples frames for body-language analysis, and alternates
// candidate answers with interviewer questions until the final turn.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/scoring"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
	"github.com/jonathan/assessment-wizard/internal/types"
)

// DefaultFrameInterval is the pause between frame captures.
const DefaultFrameInterval = 3 * time.Second

var (
	// ErrTurnInFlight is returned when a reply is sent before the previous one resolved.
	ErrTurnInFlight = errors.New("previous answer is still being processed")
	// ErrEmptyAnswer is returned for a blank reply.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrNotStarted is returned before Start succeeded.
	ErrNotStarted = errors.New("interview has not started")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("interview already started")
	// ErrFinished is returned after the final turn.
	ErrFinished = errors.New("interview is finished")
	// ErrNotFinal is returned by Complete before the final turn.
	ErrNotFinal = errors.New("interview has not reached its final turn")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("interview controller closed")
)

// API is the part of the assessment API used during an interview.
type API interface {
	StartInterview(ctx context.Context, req types.InterviewRequest) (*types.InterviewStart, error)
	ReplyInterview(ctx context.Context, sessionID, answer string) (*types.InterviewReply, error)
	AnalyzeFrame(ctx context.Context, jpeg []byte) (*types.FrameMetrics, error)
	InterviewAnalysis(ctx context.Context, sessionID string) (*types.InterviewAnalysis, error)
	PerformanceGaps(ctx context.Context, req types.PerformanceGapsRequest) (*types.PerformanceGaps, error)
	SkillRecommendations(ctx context.Context, req types.SkillRecommendationsRequest) (*types.SkillRecommendations, error)
}

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Audio) (transcribe.Result, error)
}

// Options configures a Controller.
type Options struct {
	API           API
	Device        media.Device
	FrameInterval time.Duration
	// Skills feed the skill recommendations requested after the final turn.
	Skills []string
	Logger *zap.Logger
	Now    func() time.Time
}

// Completion is everything gathered once the interview reaches its final turn.
type Completion struct {
	Analysis        *types.InterviewAnalysis    `json:"analysis,omitempty"`
	Gaps            *types.PerformanceGaps      `json:"performance_gaps,omitempty"`
	Recommendations *types.SkillRecommendations `json:"skill_recommendations,omitempty"`
	Metrics         *types.FrameMetrics         `json:"body_language,omitempty"`
	Feedback        []string                    `json:"feedback,omitempty"`
}

// Turn is the outcome of one candidate reply.
type Turn struct {
	Reply      types.InterviewReply `json:"reply"`
	Completion *Completion          `json:"completion,omitempty"`
}

// Controller owns one interview session. Its methods are safe for concurrent use.
type Controller struct {
	api      API
	device   media.Device
	interval time.Duration
	skills   []string
	logger   *zap.Logger
	now      func() time.Time

	// ctx bounds the frame loop; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	inFlight atomic.Bool

	mu        sync.Mutex
	sessionID string
	stream    media.Stream
	loop      *media.FrameLoop
	metrics   *types.FrameMetrics
	history   []types.Turn
	feedback  []string
	// final is the reply that ended the session; set before the closing
	// analysis is gathered.
	final      *types.InterviewReply
	completion *Completion
	closed     bool
}

// New creates a controller. API and Device are required.
func New(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("interview API is required")
	}
	if opts.Device == nil {
		return nil, errors.New("media device is required")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:      opts.API,
		device:   opts.Device,
		interval: opts.FrameInterval,
		skills:   append([]string(nil), opts.Skills...),
		logger:   logging.OrNop(opts.Logger),
		now:      opts.Now,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start acquires the camera and microphone, then opens a session. If the full
// request is rejected, it is retried once in its minimal form. On failure the
// devices are released and no session is kept.
func (c *Controller) Start(ctx context.Context, req types.InterviewRequest) (*types.InterviewStart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.sessionID != "" {
		return nil, ErrAlreadyStarted
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to access camera and microphone: %w", err)
	}

	start, err := c.api.StartInterview(ctx, req)
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("interview start rejected, retrying with minimal request", zap.Error(err))
		start, err = c.api.StartInterview(ctx, req.Minimal())
	}
	if err != nil {
		stream.Stop()
		return nil, fmt.Errorf("failed to start interview: %w", err)
	}

	c.sessionID = start.SessionID
	c.stream = stream
	c.history = append(c.history, types.Turn{Type: types.TurnQuestion, Content: start.FirstQuestion, Timestamp: c.now()})
	c.loop = media.StartFrameLoop(c.ctx, stream, c.interval, c.analyzeFrame, c.logger)

	c.logger.Info("interview started", zap.String("session_id", start.SessionID))
	return start, nil
}

func (c *Controller) analyzeFrame(ctx context.Context, jpeg []byte) error {
	m, err := c.api.AnalyzeFrame(ctx, jpeg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
	return nil
}

// Listen records the next spoken answer and transcribes it.
func (c *Controller) Listen(ctx context.Context, t Transcriber) (transcribe.Result, error) {
	c.mu.Lock()
	stream, final := c.stream, c.final != nil
	c.mu.Unlock()
	if final {
		return transcribe.Result{}, ErrFinished
	}
	if stream == nil {
		return transcribe.Result{}, ErrNotStarted
	}
	audio, err := stream.Record(ctx)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("failed to record answer: %w", err)
	}
	return t.Transcribe(ctx, audio)
}

// Reply sends the candidate's answer. Only one reply may be in flight. On the
// final turn capture stops and the closing analysis is gathered; if that is
// interrupted, the session stays final and Complete finishes it.
func (c *Controller) Reply(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyAnswer
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	sessionID, closed, done := c.sessionID, c.closed, c.final != nil
	c.mu.Unlock()
	switch {
	case closed:
		return nil, ErrClosed
	case sessionID == "":
		return nil, ErrNotStarted
	case done:
		return nil, ErrFinished
	}

	answeredAt := c.now()
	reply, err := c.api.ReplyInterview(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history = append(c.history, types.Turn{Type: types.TurnResponse, Content: text, Timestamp: answeredAt})
	if reply.NextQuestion != "" {
		c.history = append(c.history, types.Turn{Type: types.TurnQuestion, Content: reply.NextQuestion, Timestamp: c.now()})
	}
	for _, fb := range []string{reply.Feedback, reply.RealTimeFeedback} {
		if fb != "" {
			c.feedback = append(c.feedback, fb)
		}
	}
	if reply.Final {
		final := *reply
		c.final = &final
	}
	c.mu.Unlock()

	turn := &Turn{Reply: *reply}
	if !reply.Final {
		return turn, nil
	}

	c.stopCapture()
	completion, err := c.complete(ctx, sessionID, reply.Analysis)
	if err != nil {
		return nil, err
	}
	turn.Completion = completion
	return turn, nil
}

// Complete gathers the closing analysis after the final turn without sending
// another answer. It returns the stored completion when one exists.
func (c *Controller) Complete(ctx context.Context) (*Turn, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrTurnInFlight
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	sessionID, final, completion, closed := c.sessionID, c.final, c.completion, c.closed
	c.mu.Unlock()
	switch {
	case closed:
		return nil, ErrClosed
	case final == nil:
		return nil, ErrNotFinal
	case completion != nil:
		return &Turn{Reply: *final, Completion: completion}, nil
	}

	completion, err := c.complete(ctx, sessionID, final.Analysis)
	if err != nil {
		return nil, err
	}
	return &Turn{Reply: *final, Completion: completion}, nil
}

// Finished reports whether the remote session sent its final turn.
func (c *Controller) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final != nil
}

// complete fetches the session analysis and, when it carries a score, the
// performance gaps and skill recommendations in parallel.
func (c *Controller) complete(ctx context.Context, sessionID string, inline *types.InterviewAnalysis) (*Completion, error) {
	analysis, err := c.api.InterviewAnalysis(ctx, sessionID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("failed to fetch interview analysis", zap.String("session_id", sessionID), zap.Error(err))
		analysis = inline
	}

	c.mu.Lock()
	completion := &Completion{
		Analysis: analysis,
		Metrics:  c.metrics,
		Feedback: append([]string(nil), c.feedback...),
	}
	turns := len(c.history)
	c.mu.Unlock()

	if analysis != nil && analysis.OverallScore != nil {
		scores := types.PerformanceScores{
			OverallScore:   scoring.Normalize(*analysis.OverallScore, 0),
			TotalQuestions: analysis.TotalQuestions,
		}
		if scores.TotalQuestions == 0 {
			scores.TotalQuestions = (turns + 1) / 2
		}

		gaps, recs, err := FollowUps(ctx, c.api, scores, c.skills, completion.Feedback, c.logger)
		if err != nil {
			return nil, err
		}
		completion.Gaps, completion.Recommendations = gaps, recs
	}

	c.mu.Lock()
	c.completion = completion
	c.mu.Unlock()
	c.logger.Info("interview completed", zap.String("session_id", sessionID))
	return completion, nil
}

// stopCapture stops the frame loop and releases the devices.
func (c *Controller) stopCapture() {
	c.mu.Lock()
	loop, stream := c.loop, c.stream
	c.loop, c.stream = nil, nil
	c.mu.Unlock()

	// The loop handler takes mu, so stop it without holding the lock.
	if loop != nil {
		loop.Stop()
	}
	if stream != nil {
		stream.Stop()
	}
}

// SessionID returns the remote session id, empty before Start.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Metrics returns the latest frame analysis, nil before the first one.
func (c *Controller) Metrics() *types.FrameMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		return nil
	}
	m := *c.metrics
	return &m
}

// History returns a copy of the question and response turns.
func (c *Controller) History() []types.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Turn(nil), c.history...)
}

// Completion returns the closing analysis once the final turn was reached.
func (c *Controller) Completion() (*Completion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completion, c.completion != nil
}

// Close stops capture and ends the controller. It is safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.stopCapture()
}
