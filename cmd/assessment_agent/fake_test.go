package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jonathan/assessment-wizard/internal/types"
)

func ptr(v float64) *float64 { return &v }

// fakeAPI is an in-memory assessment API.
type fakeAPI struct {
	mu      sync.Mutex
	uploads int
	replies []string
}

func (f *fakeAPI) UploadResume(_ context.Context, _, _ string, r io.Reader) (*types.ResumeUpload, error) {
	_, _ = io.Copy(io.Discard, r)
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	return &types.ResumeUpload{ID: "r-1"}, nil
}

func (f *fakeAPI) ResumeAnalysis(_ context.Context, id string) (*types.ResumeAnalysis, error) {
	return &types.ResumeAnalysis{
		ResumeID:    id,
		Status:      types.AnalysisComplete,
		Skills:      []string{"Go", "PostgreSQL"},
		Suggestions: types.JobSuggestions{PrimaryRole: "Backend Engineer", MatchPercentage: 80},
	}, nil
}

func (f *fakeAPI) Jobs(context.Context) ([]types.Job, error) {
	return []types.Job{{ID: "1", Title: "Backend Engineer", Company: "Acme"}}, nil
}

func questions(n int) []types.Question {
	qs := make([]types.Question, n)
	for i := range qs {
		qs[i] = types.Question{ID: fmt.Sprint(i + 1), Prompt: fmt.Sprintf("Question %d", i+1), Options: []string{"A", "B"}}
	}
	return qs
}

func (f *fakeAPI) GenerateAptitude(_ context.Context, req types.AptitudeRequest) ([]types.Question, error) {
	return questions(req.Count), nil
}

func (f *fakeAPI) GenerateScenario(context.Context, types.ScenarioRequest) ([]types.Question, error) {
	return questions(3), nil
}

func (f *fakeAPI) GenerateCoding(context.Context, types.CodingRequest) (types.Question, error) {
	return types.Question{Title: "FizzBuzz", Description: "Print the numbers from 1 to 100."}, nil
}

func (f *fakeAPI) Evaluate(_ context.Context, kind types.SectionKind, _ types.EvaluationRequest) (*types.Evaluation, error) {
	switch kind {
	case types.SectionAptitude:
		return &types.Evaluation{Score: ptr(7)}, nil
	case types.SectionScenario:
		return &types.Evaluation{Percentage: ptr(85)}, nil
	default:
		return &types.Evaluation{Score: ptr(150)}, nil
	}
}

func (f *fakeAPI) StartInterview(context.Context, types.InterviewRequest) (*types.InterviewStart, error) {
	return &types.InterviewStart{SessionID: "iv-1", FirstQuestion: "Introduce yourself."}, nil
}

func (f *fakeAPI) ReplyInterview(_ context.Context, _, answer string) (*types.InterviewReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, answer)
	if len(f.replies) == 1 {
		return &types.InterviewReply{NextQuestion: "Why Go?", RealTimeFeedback: "Good structure"}, nil
	}
	return &types.InterviewReply{Final: true}, nil
}

func (f *fakeAPI) AnalyzeFrame(context.Context, []byte) (*types.FrameMetrics, error) {
	return &types.FrameMetrics{Confidence: 90}, nil
}

func (f *fakeAPI) InterviewAnalysis(_ context.Context, id string) (*types.InterviewAnalysis, error) {
	return &types.InterviewAnalysis{SessionID: id, OverallScore: ptr(8), Summary: "Clear communicator"}, nil
}

func (f *fakeAPI) PerformanceGaps(context.Context, types.PerformanceGapsRequest) (*types.PerformanceGaps, error) {
	return &types.PerformanceGaps{AreasForImprovement: []types.Label{"Depth on databases"}}, nil
}

func (f *fakeAPI) SkillRecommendations(context.Context, types.SkillRecommendationsRequest) (*types.SkillRecommendations, error) {
	return &types.SkillRecommendations{LearningPaths: []types.Label{"PostgreSQL internals"}}, nil
}

func (f *fakeAPI) answers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}
