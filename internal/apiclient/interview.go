package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/assessment-wizard/internal/types"
	embedded "github.com/jonathan/assessment-wizard/schemas"
)

// StartInterview opens an interview session.
func (c *Client) StartInterview(ctx context.Context, req types.InterviewRequest) (*types.InterviewStart, error) {
	req.Position = SanitizeRole(req.Position)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid interview request: %w", err)
	}
	const path = "/interview/start"
	resp, err := c.postJSON(ctx, path, req, MaxRequestBody)
	if err != nil {
		return nil, err
	}
	var start types.InterviewStart
	if err := c.decode(path, embedded.InterviewStart, resp, &start); err != nil {
		return nil, err
	}
	return &start, nil
}

type replyRequest struct {
	SessionID    string `json:"session_id"`
	UserResponse string `json:"user_response"`
}

// replyWire is the raw reply. The service reports completion as is_final,
// final or completed, and the next question as next_question, question or
// nextQuestion; these are the only aliases accepted.
type replyWire struct {
	IsFinal           bool                     `json:"is_final"`
	Final             bool                     `json:"final"`
	Completed         bool                     `json:"completed"`
	NextQuestion      *string                  `json:"next_question"`
	Question          *string                  `json:"question"`
	NextQuestionCamel *string                  `json:"nextQuestion"`
	Feedback          *string                  `json:"feedback"`
	RealTimeFeedback  *string                  `json:"real_time_feedback"`
	Analysis          *types.InterviewAnalysis `json:"analysis"`
}

func (w replyWire) normalize() (types.InterviewReply, error) {
	reply := types.InterviewReply{
		Final:            w.IsFinal || w.Final || w.Completed,
		Feedback:         deref(w.Feedback),
		RealTimeFeedback: deref(w.RealTimeFeedback),
		Analysis:         w.Analysis,
	}
	for _, q := range []*string{w.NextQuestion, w.Question, w.NextQuestionCamel} {
		if s := strings.TrimSpace(deref(q)); s != "" {
			reply.NextQuestion = s
			break
		}
	}
	if !reply.Final && reply.NextQuestion == "" {
		return reply, errors.New("reply is neither final nor carries a next question")
	}
	return reply, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ReplyInterview sends the candidate's answer and returns the next question or completion.
func (c *Client) ReplyInterview(ctx context.Context, sessionID, answer string) (*types.InterviewReply, error) {
	answer = strings.TrimSpace(answer)
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}
	if answer == "" {
		return nil, errors.New("answer is required")
	}
	const path = "/interview/reply"
	resp, err := c.postJSON(ctx, path, replyRequest{SessionID: sessionID, UserResponse: answer}, 0)
	if err != nil {
		return nil, err
	}
	var wire replyWire
	if err := c.decode(path, embedded.InterviewReply, resp, &wire); err != nil {
		return nil, err
	}
	reply, err := wire.normalize()
	if err != nil {
		return nil, &DecodeError{Path: path, Schema: embedded.InterviewReply, Cause: err}
	}
	return &reply, nil
}

type frameRequest struct {
	FrameData string `json:"frame_data"`
}

type metricWire struct {
	Score float64 `json:"score"`
}

type frameWire struct {
	Confidence       float64    `json:"confidence_score"`
	Overall          float64    `json:"overall_score"`
	EyeContact       metricWire `json:"eye_contact"`
	Posture          metricWire `json:"posture"`
	HeadMovement     metricWire `json:"head_movement"`
	FacialExpression metricWire `json:"facial_expression"`
	HandGestures     metricWire `json:"hand_gestures"`
	Suggestions      []string   `json:"real_time_suggestions"`
}

// AnalyzeFrame sends a JPEG frame for body-language analysis. The confidence
// score arrives as a fraction and is returned as a percentage.
func (c *Client) AnalyzeFrame(ctx context.Context, jpeg []byte) (*types.FrameMetrics, error) {
	if len(jpeg) == 0 {
		return nil, errors.New("frame is empty")
	}
	const path = "/interview/analyze/frame"
	resp, err := c.postJSON(ctx, path, frameRequest{FrameData: base64.StdEncoding.EncodeToString(jpeg)}, 0)
	if err != nil {
		return nil, err
	}
	var wire frameWire
	if err := c.decode(path, embedded.FrameAnalysis, resp, &wire); err != nil {
		return nil, err
	}
	return &types.FrameMetrics{
		Confidence:       wire.Confidence * 100,
		Overall:          wire.Overall,
		EyeContact:       wire.EyeContact.Score,
		Posture:          wire.Posture.Score,
		HeadMovement:     wire.HeadMovement.Score,
		FacialExpression: wire.FacialExpression.Score,
		HandGestures:     wire.HandGestures.Score,
		Suggestions:      wire.Suggestions,
		CapturedAt:       time.Now().UTC(),
	}, nil
}

// InterviewAnalysis fetches the final analysis of a session.
func (c *Client) InterviewAnalysis(ctx context.Context, sessionID string) (*types.InterviewAnalysis, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}
	path := "/interview/analysis/" + url.PathEscape(sessionID)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var analysis types.InterviewAnalysis
	if err := c.decode(path, embedded.InterviewAnalysis, resp, &analysis); err != nil {
		return nil, err
	}
	if analysis.SessionID == "" {
		analysis.SessionID = sessionID
	}
	return &analysis, nil
}

// PerformanceGaps asks for improvement areas given interview scores.
func (c *Client) PerformanceGaps(ctx context.Context, req types.PerformanceGapsRequest) (*types.PerformanceGaps, error) {
	const path = "/analyze_performance_gaps"
	resp, err := c.postJSON(ctx, path, req, 0)
	if err != nil {
		return nil, err
	}
	var gaps types.PerformanceGaps
	if err := c.decode(path, embedded.PerformanceGaps, resp, &gaps); err != nil {
		return nil, err
	}
	return &gaps, nil
}

// SkillRecommendations asks for learning paths given skills and scores.
func (c *Client) SkillRecommendations(ctx context.Context, req types.SkillRecommendationsRequest) (*types.SkillRecommendations, error) {
	const path = "/generate_skill_based_recommendations"
	resp, err := c.postJSON(ctx, path, req, 0)
	if err != nil {
		return nil, err
	}
	var recs types.SkillRecommendations
	if err := c.decode(path, embedded.SkillRecommendations, resp, &recs); err != nil {
		return nil, err
	}
	return &recs, nil
}
