package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AnalysisStatus is the processing state of an uploaded resume.
type AnalysisStatus string

// Analysis statuses reported by the resume service.
const (
	AnalysisPending    AnalysisStatus = "PENDING"
	AnalysisProcessing AnalysisStatus = "PROCESSING"
	AnalysisComplete   AnalysisStatus = "COMPLETE"
	AnalysisFailed     AnalysisStatus = "FAILED"
)

// Terminal reports whether polling can stop.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisComplete || s == AnalysisFailed
}

// ResumeUpload is the response to a resume upload.
type ResumeUpload struct {
	ID         string    `json:"id" validate:"required"`
	FileName   string    `json:"filename,omitempty"`
	Status     string    `json:"status,omitempty"`
	UploadedAt time.Time `json:"uploaded_at,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids.
func (u *ResumeUpload) UnmarshalJSON(data []byte) error {
	type alias ResumeUpload
	var raw struct {
		alias
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = ResumeUpload(raw.alias)
	id, err := flexibleID(raw.ID)
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// ResumeAnalysis is the analysis record for an uploaded resume.
type ResumeAnalysis struct {
	ResumeID      string         `json:"resume_id,omitempty"`
	Status        AnalysisStatus `json:"status" validate:"required"`
	Skills        []string       `json:"skills,omitempty"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	AIModel       string         `json:"ai_model,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Suggestions   JobSuggestions `json:"job_suggestions,omitempty"`
}

// JobSuggestions are the roles suggested from the resume analysis.
type JobSuggestions struct {
	PrimaryRole     string   `json:"primary_role,omitempty"`
	AdditionalRoles []string `json:"additional_roles,omitempty"`
	MatchPercentage float64  `json:"match_percentage,omitempty"`
}

// Job is a job listing returned by the jobs endpoint.
type Job struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title"`
	Company         string   `json:"company,omitempty"`
	Location        string   `json:"location,omitempty"`
	Description     string   `json:"description,omitempty"`
	RequiredSkills  []string `json:"required_skills,omitempty"`
	MatchPercentage float64  `json:"match_percentage,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids.
func (j *Job) UnmarshalJSON(data []byte) error {
	type alias Job
	var raw struct {
		alias
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = Job(raw.alias)
	if len(raw.ID) == 0 {
		return nil
	}
	id, err := flexibleID(raw.ID)
	if err != nil {
		return err
	}
	j.ID = id
	return nil
}

// flexibleID decodes a JSON string or number into a string id.
func flexibleID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}

// Label is a list entry the API returns either as a bare string or as an
// object carrying one of title, area, name, skill or description.
type Label string

// UnmarshalJSON decodes either form.
func (l *Label) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = Label(s)
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("label must be a string or object: %w", err)
	}
	for _, key := range []string{"title", "area", "name", "skill", "description"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			*l = Label(v)
			return nil
		}
	}
	*l = ""
	return nil
}

// Strings converts labels to plain strings, dropping empty entries.
func Strings(labels []Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if s := strings.TrimSpace(string(l)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
