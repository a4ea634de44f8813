package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata per instance.
var validate = validator.New()

// AptitudeRequest asks for a set of aptitude questions.
type AptitudeRequest struct {
	Count        int      `json:"count" validate:"min=1,max=50"`
	Difficulty   string   `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Topics       []string `json:"topics" validate:"required,min=1,dive,required"`
	TopicWeights []int    `json:"topic_weights,omitempty"`
}

// ScenarioRequest asks for scenario-based (legacy: behavioral) questions.
type ScenarioRequest struct {
	Skills   string `json:"skills" validate:"max=500"`
	Level    string `json:"level" validate:"required"`
	JobRole  string `json:"job_role" validate:"max=100"`
	TestType string `json:"test_type" validate:"required"`
	Company  string `json:"company,omitempty"`
}

// CodingRequest asks for a coding challenge.
type CodingRequest struct {
	Skills         string `json:"skills" validate:"max=500"`
	JobRole        string `json:"job_role" validate:"max=100"`
	JobDescription string `json:"job_description,omitempty"`
	Level          string `json:"level" validate:"required"`
	Company        string `json:"company,omitempty"`
}

// EvaluationRequest submits answers for evaluation. Coding submissions carry
// the challenge text in Challenge and the source in Solution.
type EvaluationRequest struct {
	Questions []Question `json:"questions" validate:"required,min=1"`
	Answers   []string   `json:"answers,omitempty"`
	Skills    []string   `json:"skills,omitempty"`
	JobRole   string     `json:"job_role,omitempty"`
	Challenge string     `json:"challenge,omitempty"`
	Solution  string     `json:"solution,omitempty"`
	Language  string     `json:"language,omitempty"`
	TimeTaken int        `json:"time_taken,omitempty"`
}

// Evaluation is a raw evaluation response before score normalization.
type Evaluation struct {
	Score        *float64         `json:"score,omitempty"`
	Percentage   *float64         `json:"percentage,omitempty"`
	MaxScore     float64          `json:"max_score,omitempty"`
	OutOf        float64          `json:"out_of,omitempty"`
	Correct      int              `json:"correct_answers,omitempty"`
	Total        int              `json:"total_questions,omitempty"`
	Feedback     string           `json:"feedback,omitempty"`
	Evaluation   string           `json:"evaluation,omitempty"`
	Strengths    []Label          `json:"strengths,omitempty"`
	Improvements []Label          `json:"areas_for_improvement,omitempty"`
	Results      []ItemEvaluation `json:"detailed_results,omitempty"`
}

// ReportAnalysis is the analysis block of a report request.
type ReportAnalysis struct {
	AssessmentResults    []Result              `json:"assessment_results"`
	PerformanceGaps      *PerformanceGaps      `json:"performance_gaps,omitempty"`
	SkillRecommendations *SkillRecommendations `json:"skill_recommendations,omitempty"`
	AssessmentType       string                `json:"assessment_type"`
	Timestamp            time.Time             `json:"timestamp"`
}

// ReportRequest asks the API for a downloadable report.
type ReportRequest struct {
	Jobs     []Job          `json:"jobs"`
	Analysis ReportAnalysis `json:"analysis"`
}

// InterviewReportRequest asks for an interview PDF.
type InterviewReportRequest struct {
	SessionID string             `json:"session_id" validate:"required"`
	History   []Turn             `json:"history,omitempty"`
	Analysis  *InterviewAnalysis `json:"analysis,omitempty"`
}

// Validate validates the AptitudeRequest using the validator.
func (r *AptitudeRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the ScenarioRequest using the validator.
func (r *ScenarioRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the CodingRequest using the validator.
func (r *CodingRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the EvaluationRequest using the validator.
func (r *EvaluationRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the InterviewRequest using the validator.
func (r *InterviewRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the InterviewReportRequest using the validator.
func (r *InterviewReportRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the ResumeUpload using the validator.
func (u *ResumeUpload) Validate() error {
	return validate.Struct(u)
}

// Validate validates the ResumeAnalysis using the validator.
func (a *ResumeAnalysis) Validate() error {
	return validate.Struct(a)
}

// Validate validates the InterviewStart using the validator.
func (s *InterviewStart) Validate() error {
	return validate.Struct(s)
}
