package types

import "time"

// TurnType distinguishes interviewer questions from candidate responses.
type TurnType string

// Turn types recorded in the interview history.
const (
	TurnQuestion TurnType = "question"
	TurnResponse TurnType = "response"
)

// Turn is one entry of the interview history.
type Turn struct {
	Type      TurnType  `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// InterviewRequest starts an AI interview session.
type InterviewRequest struct {
	InterviewType      string `json:"interview_type" validate:"required"`
	Position           string `json:"position" validate:"required,max=100"`
	ExperienceLevel    string `json:"experience_level" validate:"required"`
	PreferredLanguage  string `json:"preferred_language,omitempty"`
	Mode               string `json:"mode,omitempty"`
	Industry           string `json:"industry,omitempty"`
	CompanyTemplate    string `json:"company_template,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
	UserID             string `json:"user_id,omitempty"`
}

// Minimal returns the reduced request used when the full request is rejected.
func (r InterviewRequest) Minimal() InterviewRequest {
	return InterviewRequest{
		InterviewType:     r.InterviewType,
		Position:          r.Position,
		ExperienceLevel:   r.ExperienceLevel,
		PreferredLanguage: r.PreferredLanguage,
		Mode:              r.Mode,
		Industry:          r.Industry,
		UserID:            r.UserID,
	}
}

// InterviewStart is the response to starting an interview.
type InterviewStart struct {
	SessionID     string `json:"session_id" validate:"required"`
	FirstQuestion string `json:"first_question" validate:"required"`
}

// InterviewReply is the normalized response to a candidate answer.
type InterviewReply struct {
	NextQuestion     string             `json:"next_question,omitempty"`
	Final            bool               `json:"final"`
	Feedback         string             `json:"feedback,omitempty"`
	RealTimeFeedback string             `json:"real_time_feedback,omitempty"`
	Analysis         *InterviewAnalysis `json:"analysis,omitempty"`
}

// InterviewAnalysis is the final analysis of an interview session.
type InterviewAnalysis struct {
	SessionID       string   `json:"session_id,omitempty"`
	OverallScore    *float64 `json:"overall_score,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Strengths       []Label  `json:"strengths,omitempty"`
	Improvements    []Label  `json:"areas_for_improvement,omitempty"`
	Recommendations []Label  `json:"recommendations,omitempty"`
	TotalQuestions  int      `json:"total_questions,omitempty"`
}

// FrameMetrics are the body-language scores for a captured frame.
type FrameMetrics struct {
	Confidence       float64   `json:"confidence_score"`
	Overall          float64   `json:"overall_score"`
	EyeContact       float64   `json:"eye_contact"`
	Posture          float64   `json:"posture"`
	HeadMovement     float64   `json:"head_movement"`
	FacialExpression float64   `json:"facial_expression"`
	HandGestures     float64   `json:"hand_gestures"`
	Suggestions      []string  `json:"real_time_suggestions,omitempty"`
	CapturedAt       time.Time `json:"captured_at"`
}

// PerformanceScores summarize an interview for gap analysis.
type PerformanceScores struct {
	OverallScore   float64 `json:"overall_score"`
	TotalQuestions int     `json:"total_questions"`
	Accuracy       float64 `json:"accuracy"`
	TimeEfficiency float64 `json:"time_efficiency"`
}

// PerformanceGapsRequest asks for improvement areas.
type PerformanceGapsRequest struct {
	Scores   PerformanceScores `json:"scores"`
	Feedback []string          `json:"feedback,omitempty"`
}

// PerformanceGaps are the improvement areas and strengths found.
type PerformanceGaps struct {
	AreasForImprovement []Label `json:"areas_for_improvement,omitempty"`
	Strengths           []Label `json:"strengths,omitempty"`
}

// SkillRecommendationsRequest asks for learning recommendations.
type SkillRecommendationsRequest struct {
	Skills []string          `json:"skills"`
	Scores PerformanceScores `json:"scores"`
}

// SkillRecommendations are learning paths and practice projects.
type SkillRecommendations struct {
	AssessmentSummary string  `json:"assessment_summary,omitempty"`
	LearningPaths     []Label `json:"learning_paths,omitempty"`
	PracticeProjects  []Label `json:"practice_projects,omitempty"`
}
