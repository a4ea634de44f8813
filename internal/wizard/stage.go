package wizard

import (
	"time"

	"github.com/jonathan/assessment-wizard/internal/types"
)

// UploadPayload describes the uploaded resume.
type UploadPayload struct {
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ResumeID    string    `json:"resume_id"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// AnalysisPayload is the terminal analysis of the uploaded resume.
type AnalysisPayload struct {
	ResumeID      string               `json:"resume_id"`
	Status        types.AnalysisStatus `json:"status"`
	Skills        []string             `json:"skills,omitempty"`
	ExtractedText string               `json:"extracted_text,omitempty"`
	AIModel       string               `json:"ai_model,omitempty"`
	ErrorMessage  string               `json:"error_message,omitempty"`
	Suggestions   types.JobSuggestions `json:"job_suggestions,omitempty"`
}

// JobsPayload is the role context committed with the path choice.
type JobsPayload struct {
	SuggestedRole   string   `json:"suggested_role,omitempty"`
	AdditionalRoles []string `json:"additional_roles,omitempty"`
	MatchPercentage float64  `json:"match_percentage,omitempty"`
	JobDescription  string   `json:"job_description,omitempty"`
}

// SectionPayload is one quick-test assessment: its questions, the answers
// aligned by index, and the evaluation once submitted.
type SectionPayload struct {
	Kind      types.SectionKind `json:"kind"`
	Questions []types.Question  `json:"questions,omitempty"`
	Answers   []string          `json:"answers,omitempty"`
	Result    *types.Result     `json:"result,omitempty"`
	StartedAt time.Time         `json:"started_at,omitempty"`
}

// Sheet returns the payload as an answer sheet.
func (p SectionPayload) Sheet() *types.AnswerSheet {
	sheet := types.NewAnswerSheet(p.Kind, p.Questions)
	copy(sheet.Answers, p.Answers)
	return sheet
}

func (p SectionPayload) clone() SectionPayload {
	c := p
	c.Questions = append([]types.Question(nil), p.Questions...)
	c.Answers = append([]string(nil), p.Answers...)
	if p.Result != nil {
		r := *p.Result
		c.Result = &r
	}
	return c
}

// ResultsPayload is the quick-test summary.
type ResultsPayload struct {
	Records []types.Result `json:"records"`
	Overall float64        `json:"overall"`
}

// InterviewPayload is the AI interview state.
type InterviewPayload struct {
	SessionID string                   `json:"session_id,omitempty"`
	History   []types.Turn             `json:"history,omitempty"`
	Final     bool                     `json:"final"`
	Analysis  *types.InterviewAnalysis `json:"analysis,omitempty"`
	StartedAt time.Time                `json:"started_at,omitempty"`
}

// Stage is the active step together with the data that step owns.
type Stage interface {
	Step() Step
}

// WelcomeStage is the landing step.
type WelcomeStage struct{}

// UploadStage waits for a resume upload.
type UploadStage struct{}

// AnalysisStage waits for the analysis of an uploaded resume.
type AnalysisStage struct {
	ResumeID string
}

// JobsStage shows job suggestions and the path choice.
type JobsStage struct{}

// SectionStage runs one quick-test assessment.
type SectionStage struct {
	Section SectionPayload
}

// ResultsStage shows the quick-test summary.
type ResultsStage struct {
	Results ResultsPayload
}

// InterviewStage runs the AI interview.
type InterviewStage struct {
	Interview InterviewPayload
}

func (WelcomeStage) Step() Step  { return StepWelcome }
func (UploadStage) Step() Step   { return StepUpload }
func (AnalysisStage) Step() Step { return StepAnalysis }
func (JobsStage) Step() Step     { return StepJobs }
func (ResultsStage) Step() Step  { return StepResults }

// Step returns the assessment step for the section kind.
func (s SectionStage) Step() Step {
	st, _ := SectionStep(s.Section.Kind)
	return st
}

func (InterviewStage) Step() Step { return StepInterview }
