package reports

import (
	"time"

	"github.com/jonathan/assessment-wizard/internal/types"
)

// Assessment types as they appear on reports.
const (
	TypeQuickTest   = "quick-test"
	TypeAIInterview = "ai-interview"
)

// Input is everything a report is built from.
type Input struct {
	SessionID   string
	Type        string
	Role        string
	Skills      []string
	Jobs        []types.Job
	Results     []types.Result
	Overall     float64
	Interview   *Interview
	Gaps        *types.PerformanceGaps
	Recs        *types.SkillRecommendations
	StartedAt   time.Time
	GeneratedAt time.Time
}

// Interview is the interview part of a report.
type Interview struct {
	SessionID string
	History   []types.Turn
	Analysis  *types.InterviewAnalysis
	Metrics   *types.FrameMetrics
}

// Score returns the headline score: the quick-test overall, or the normalized
// interview score.
func (in Input) Score() (float64, bool) {
	if in.Type == TypeAIInterview {
		if in.Interview == nil || in.Interview.Analysis == nil || in.Interview.Analysis.OverallScore == nil {
			return 0, false
		}
		return normalize(*in.Interview.Analysis.OverallScore), true
	}
	return in.Overall, len(in.Results) > 0
}

// Duration is the time from start to generation, zero when unknown.
func (in Input) Duration() time.Duration {
	if in.StartedAt.IsZero() || in.GeneratedAt.Before(in.StartedAt) {
		return 0
	}
	return in.GeneratedAt.Sub(in.StartedAt).Round(time.Second)
}

func (in Input) reportRequest() types.ReportRequest {
	return types.ReportRequest{
		Jobs: in.Jobs,
		Analysis: types.ReportAnalysis{
			AssessmentResults:    in.Results,
			PerformanceGaps:      in.Gaps,
			SkillRecommendations: in.Recs,
			AssessmentType:       in.Type,
			Timestamp:            in.GeneratedAt,
		},
	}
}

func (in Input) interviewRequest() types.InterviewReportRequest {
	req := types.InterviewReportRequest{SessionID: in.SessionID}
	if in.Interview != nil {
		req.SessionID = in.Interview.SessionID
		req.History = in.Interview.History
		req.Analysis = in.Interview.Analysis
	}
	return req
}
