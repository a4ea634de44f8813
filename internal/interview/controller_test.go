package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/transcribe"
	"github.com/jonathan/assessment-wizard/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAPI struct {
	mu          sync.Mutex
	startErrs   []error
	starts      []types.InterviewRequest
	replies     []*types.InterviewReply
	replyGate   chan struct{}
	replyCalls  int
	onAnalysis  func(ctx context.Context) error
	frames      int
	analysis    *types.InterviewAnalysis
	analysisErr error
	gapsCalls   int
	recsReq     *types.SkillRecommendationsRequest
}

func (f *fakeAPI) StartInterview(_ context.Context, req types.InterviewRequest) (*types.InterviewStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &types.InterviewStart{SessionID: "sess-1", FirstQuestion: "Tell me about yourself."}, nil
}

func (f *fakeAPI) ReplyInterview(ctx context.Context, _, _ string) (*types.InterviewReply, error) {
	if f.replyGate != nil {
		select {
		case <-f.replyGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyCalls++
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeAPI) AnalyzeFrame(context.Context, []byte) (*types.FrameMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames++
	return &types.FrameMetrics{Confidence: 82, EyeContact: 70}, nil
}

func (f *fakeAPI) InterviewAnalysis(ctx context.Context, _ string) (*types.InterviewAnalysis, error) {
	if f.onAnalysis != nil {
		if err := f.onAnalysis(ctx); err != nil {
			return nil, err
		}
	}
	return f.analysis, f.analysisErr
}

func (f *fakeAPI) PerformanceGaps(context.Context, types.PerformanceGapsRequest) (*types.PerformanceGaps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gapsCalls++
	return &types.PerformanceGaps{AreasForImprovement: []types.Label{"System design"}}, nil
}

func (f *fakeAPI) SkillRecommendations(_ context.Context, req types.SkillRecommendationsRequest) (*types.SkillRecommendations, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recsReq = &req
	return nil, errors.New("recommendations unavailable")
}

type countingDevice struct {
	*media.PushDevice
	opened int
}

func (d *countingDevice) Open(ctx context.Context) (media.Stream, error) {
	d.opened++
	return d.PushDevice.Open(ctx)
}

func score(v float64) *float64 { return &v }

var request = types.InterviewRequest{
	InterviewType:   "technical",
	Position:        "Backend Engineer",
	ExperienceLevel: "mid",
}

func newController(t *testing.T, api *fakeAPI, device media.Device) *Controller {
	t.Helper()
	c, err := New(Options{API: api, Device: device, FrameInterval: 5 * time.Millisecond, Skills: []string{"Go"}})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestStart_PermissionDenied(t *testing.T) {
	api := &fakeAPI{}
	c := newController(t, api, media.DeniedDevice{})

	_, err := c.Start(context.Background(), request)
	require.ErrorIs(t, err, media.ErrPermissionDenied)
	assert.Empty(t, c.SessionID())
	assert.Empty(t, api.starts, "no session is requested without media")
}

func TestStart_FallsBackToMinimalRequest(t *testing.T) {
	api := &fakeAPI{startErrs: []error{errors.New("422")}}
	full := request
	full.CustomInstructions = "focus on Kafka"
	c := newController(t, api, media.NewPushDevice())

	start, err := c.Start(context.Background(), full)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", start.SessionID)
	require.Len(t, api.starts, 2)
	assert.Equal(t, "focus on Kafka", api.starts[0].CustomInstructions)
	assert.Empty(t, api.starts[1].CustomInstructions)

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, types.TurnQuestion, history[0].Type)
}

func TestStart_FailureReleasesMedia(t *testing.T) {
	api := &fakeAPI{startErrs: []error{errors.New("500"), errors.New("500")}}
	device := media.NewPushDevice()
	c := newController(t, api, device)

	_, err := c.Start(context.Background(), request)
	require.Error(t, err)
	assert.Empty(t, c.SessionID())
	assert.ErrorIs(t, device.PushFrame([]byte{1}), media.ErrStopped)
}

func TestStart_Twice(t *testing.T) {
	c := newController(t, &fakeAPI{}, media.NewPushDevice())
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)
	_, err = c.Start(context.Background(), request)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestFrameLoop_StoresLatestMetrics(t *testing.T) {
	api := &fakeAPI{}
	device := media.NewPushDevice()
	c := newController(t, api, device)
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	require.NoError(t, device.PushFrame([]byte{0xFF, 0xD8}))
	require.Eventually(t, func() bool { return c.Metrics() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 82.0, c.Metrics().Confidence)
}

func TestReply_RejectsEmptyAndUnstarted(t *testing.T) {
	c := newController(t, &fakeAPI{}, media.NewPushDevice())
	_, err := c.Reply(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	_, err = c.Reply(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestReply_TurnInFlight(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{replyGate: gate, replies: []*types.InterviewReply{{NextQuestion: "Next?"}}}
	c := newController(t, api, media.NewPushDevice())
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Reply(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, c.inFlight.Load, time.Second, time.Millisecond)

	_, err = c.Reply(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(gate)
	require.NoError(t, <-done)
	assert.Len(t, c.History(), 3)
}

func TestReply_FinalTurnCompletes(t *testing.T) {
	api := &fakeAPI{
		replies: []*types.InterviewReply{
			{NextQuestion: "Describe a hard bug.", Feedback: "Good structure"},
			{Final: true},
		},
		analysis: &types.InterviewAnalysis{SessionID: "sess-1", OverallScore: score(7.5)},
	}
	device := media.NewPushDevice()
	c := newController(t, api, device)
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	turn, err := c.Reply(context.Background(), "I build APIs in Go.")
	require.NoError(t, err)
	assert.Nil(t, turn.Completion)

	turn, err = c.Reply(context.Background(), "A race in a cache.")
	require.NoError(t, err)
	require.NotNil(t, turn.Completion)
	assert.Equal(t, "sess-1", turn.Completion.Analysis.SessionID)
	require.NotNil(t, turn.Completion.Gaps)
	assert.Nil(t, turn.Completion.Recommendations, "a failed side request is not fatal")
	assert.Equal(t, []string{"Good structure"}, turn.Completion.Feedback)
	require.NotNil(t, api.recsReq)
	assert.Equal(t, 75.0, api.recsReq.Scores.OverallScore)
	assert.Equal(t, []string{"Go"}, api.recsReq.Skills)

	assert.ErrorIs(t, device.PushFrame([]byte{1}), media.ErrStopped, "media is released on the final turn")
	_, err = c.Reply(context.Background(), "anything else?")
	assert.ErrorIs(t, err, ErrFinished)

	history := c.History()
	require.Len(t, history, 4)
	assert.Equal(t, types.TurnResponse, history[3].Type)
}

func TestReply_FinalWithoutScoreSkipsFollowUps(t *testing.T) {
	api := &fakeAPI{
		replies:     []*types.InterviewReply{{Final: true, Analysis: &types.InterviewAnalysis{Summary: "inline"}}},
		analysisErr: errors.New("404"),
	}
	c := newController(t, api, media.NewPushDevice())
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	turn, err := c.Reply(context.Background(), "done")
	require.NoError(t, err)
	require.NotNil(t, turn.Completion.Analysis)
	assert.Equal(t, "inline", turn.Completion.Analysis.Summary)
	assert.Zero(t, api.gapsCalls)
	assert.Nil(t, api.recsReq)
}

func TestReply_InterruptedCompletionKeepsFinalState(t *testing.T) {
	api := &fakeAPI{
		replies:  []*types.InterviewReply{{Final: true, RealTimeFeedback: "Clear"}},
		analysis: &types.InterviewAnalysis{SessionID: "sess-1", Summary: "Clear communicator"},
	}
	device := media.NewPushDevice()
	c := newController(t, api, device)
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	api.onAnalysis = func(context.Context) error {
		cancel()
		return ctx.Err()
	}
	_, err = c.Reply(ctx, "Thanks for your time.")
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, c.Finished())
	_, done := c.Completion()
	assert.False(t, done)
	assert.Len(t, c.History(), 2)

	_, err = c.Reply(context.Background(), "hello?")
	assert.ErrorIs(t, err, ErrFinished)
	_, err = c.Listen(context.Background(), &stubTranscriber{})
	assert.ErrorIs(t, err, ErrFinished)
	assert.Equal(t, 1, api.replyCalls, "no answer is sent after the final turn")

	api.onAnalysis = nil
	turn, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.True(t, turn.Reply.Final)
	require.NotNil(t, turn.Completion)
	assert.Equal(t, "Clear communicator", turn.Completion.Analysis.Summary)
	assert.Equal(t, []string{"Clear"}, turn.Completion.Feedback)
	assert.Equal(t, 1, api.replyCalls)

	again, err := c.Complete(context.Background())
	require.NoError(t, err)
	assert.Same(t, turn.Completion, again.Completion)
}

func TestComplete_BeforeFinalTurn(t *testing.T) {
	c := newController(t, &fakeAPI{}, media.NewPushDevice())
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	_, err = c.Complete(context.Background())
	assert.ErrorIs(t, err, ErrNotFinal)
	assert.False(t, c.Finished())
}

type stubTranscriber struct{ got media.Audio }

func (s *stubTranscriber) Transcribe(_ context.Context, a media.Audio) (transcribe.Result, error) {
	s.got = a
	return transcribe.Result{Text: "spoken answer", Provider: "stub"}, nil
}

func TestListen(t *testing.T) {
	device := media.NewPushDevice()
	c := newController(t, &fakeAPI{}, device)
	tr := &stubTranscriber{}

	_, err := c.Listen(context.Background(), tr)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = c.Start(context.Background(), request)
	require.NoError(t, err)
	require.NoError(t, device.PushAudio(media.Audio{ContentType: "audio/webm", Data: []byte("ogg")}))

	res, err := c.Listen(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "spoken answer", res.Text)
	assert.Equal(t, []byte("ogg"), tr.got.Data)

	_, err = c.Listen(context.Background(), tr)
	assert.ErrorIs(t, err, media.ErrNoAudio)
}

func TestClose_Idempotent(t *testing.T) {
	device := &countingDevice{PushDevice: media.NewPushDevice()}
	c := newController(t, &fakeAPI{}, device)
	_, err := c.Start(context.Background(), request)
	require.NoError(t, err)

	c.Close()
	c.Close()
	assert.ErrorIs(t, device.PushFrame([]byte{1}), media.ErrStopped)
	assert.Equal(t, 1, device.opened)

	_, err = c.Reply(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
}
