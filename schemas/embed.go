// Package schemas embeds the JSON Schemas for assessment API responses and
// persisted wizard state.
package schemas

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.schema.json
var files embed.FS

// Schema names, without the .schema.json suffix.
const (
	ResumeUpload         = "resume_upload"
	ResumeAnalysis       = "resume_analysis"
	Jobs                 = "jobs"
	Questions            = "questions"
	CodingChallenge      = "coding_challenge"
	Evaluation           = "evaluation"
	InterviewStart       = "interview_start"
	InterviewReply       = "interview_reply"
	FrameAnalysis        = "frame_analysis"
	InterviewAnalysis    = "interview_analysis"
	PerformanceGaps      = "performance_gaps"
	SkillRecommendations = "skill_recommendations"
	Transcription        = "transcription"
	WizardState          = "wizard_state"
)

const suffix = ".schema.json"

// Load returns the schema document for name.
func Load(name string) (string, error) {
	data, err := files.ReadFile(name + suffix)
	if err != nil {
		return "", fmt.Errorf("schema %q not found: %w", name, err)
	}
	return string(data), nil
}

// Names lists every embedded schema name in sorted order.
func Names() []string {
	entries, err := fs.Glob(files, "*"+suffix)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e, suffix))
	}
	sort.Strings(names)
	return names
}
