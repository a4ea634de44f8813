// Package types provides type definitions for structured data exchanged with the assessment API.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SectionKind identifies one of the quick-test assessments.
type SectionKind string

// Section kinds in the order the quick-test path runs them.
const (
	SectionAptitude SectionKind = "aptitude"
	SectionScenario SectionKind = "scenario-based"
	SectionCoding   SectionKind = "coding"
)

// SectionKinds returns every section kind in quick-test order.
func SectionKinds() []SectionKind {
	return []SectionKind{SectionAptitude, SectionScenario, SectionCoding}
}

// ParseSectionKind parses a section kind. The legacy "behavioral" name maps to scenario-based.
func ParseSectionKind(s string) (SectionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "aptitude":
		return SectionAptitude, nil
	case "scenario-based", "scenario_based", "scenario", "behavioral":
		return SectionScenario, nil
	case "coding":
		return SectionCoding, nil
	}
	return "", fmt.Errorf("unknown section kind: %q", s)
}

// Valid reports whether k is a known section kind.
func (k SectionKind) Valid() bool {
	switch k {
	case SectionAptitude, SectionScenario, SectionCoding:
		return true
	}
	return false
}

// StorageKey returns the store key holding the section's data.
func (k SectionKind) StorageKey() string {
	switch k {
	case SectionAptitude:
		return "aptitudeTestData"
	case SectionScenario:
		return "scenarioBasedTestData"
	case SectionCoding:
		return "codingTestData"
	}
	return ""
}

// Title returns a human-readable section name.
func (k SectionKind) Title() string {
	switch k {
	case SectionAptitude:
		return "Aptitude Test"
	case SectionScenario:
		return "Scenario-Based Test"
	case SectionCoding:
		return "Coding Challenge"
	}
	return string(k)
}

// Question is a single generated question. Coding challenges use Title,
// Description, Language and Constraints and leave Options empty.
type Question struct {
	ID          string   `json:"id,omitempty"`
	Prompt      string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Scenario    string   `json:"scenario,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	StarterCode string   `json:"starter_code,omitempty"`
}

// UnmarshalJSON accepts numeric or string ids.
func (q *Question) UnmarshalJSON(data []byte) error {
	type alias Question
	var raw struct {
		alias
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = Question(raw.alias)
	id, err := flexibleID(raw.ID)
	if err != nil {
		return err
	}
	q.ID = id
	return nil
}

// Text returns the text shown to the candidate.
func (q Question) Text() string {
	if q.Prompt != "" {
		return q.Prompt
	}
	if q.Description != "" {
		return q.Description
	}
	return q.Title
}

// ErrAnswerIndex is returned when an answer index falls outside the question list.
var ErrAnswerIndex = errors.New("answer index out of range")

// AnswerSheet pairs generated questions with the candidate's answers by index.
type AnswerSheet struct {
	Kind      SectionKind `json:"kind"`
	Questions []Question  `json:"questions"`
	Answers   []string    `json:"answers"`
}

// NewAnswerSheet creates a sheet with one empty answer per question.
func NewAnswerSheet(kind SectionKind, questions []Question) *AnswerSheet {
	qs := make([]Question, len(questions))
	copy(qs, questions)
	return &AnswerSheet{
		Kind:      kind,
		Questions: qs,
		Answers:   make([]string, len(qs)),
	}
}

// SetAnswer stores the answer for question i.
func (s *AnswerSheet) SetAnswer(i int, answer string) error {
	if i < 0 || i >= len(s.Questions) {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrAnswerIndex, i, len(s.Questions))
	}
	if len(s.Answers) != len(s.Questions) {
		s.align()
	}
	s.Answers[i] = answer
	return nil
}

// align pads or truncates Answers to the question count. Restored sheets may be misaligned.
func (s *AnswerSheet) align() {
	answers := make([]string, len(s.Questions))
	copy(answers, s.Answers)
	s.Answers = answers
}

// Aligned reports whether there is exactly one answer slot per question.
func (s *AnswerSheet) Aligned() bool {
	return len(s.Answers) == len(s.Questions)
}

// Answered returns the number of non-blank answers.
func (s *AnswerSheet) Answered() int {
	n := 0
	for _, a := range s.Answers {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}

// Complete reports whether every question has a non-blank answer.
func (s *AnswerSheet) Complete() bool {
	return len(s.Questions) > 0 && s.Aligned() && s.Answered() == len(s.Questions)
}

// Clone returns a deep copy of the sheet.
func (s *AnswerSheet) Clone() *AnswerSheet {
	if s == nil {
		return nil
	}
	c := NewAnswerSheet(s.Kind, s.Questions)
	copy(c.Answers, s.Answers)
	return c
}

// ItemEvaluation is the per-question verdict returned by an evaluation.
type ItemEvaluation struct {
	Index      int    `json:"index"`
	Correct    *bool  `json:"correct,omitempty"`
	Evaluation string `json:"evaluation,omitempty"`
}

// Result is a normalized section result. Score is always within [0,100].
type Result struct {
	Kind         SectionKind      `json:"kind"`
	Score        float64          `json:"score"`
	RawScore     float64          `json:"raw_score"`
	MaxScore     float64          `json:"max_score,omitempty"`
	Items        []ItemEvaluation `json:"items,omitempty"`
	Feedback     string           `json:"feedback,omitempty"`
	Strengths    []string         `json:"strengths,omitempty"`
	Improvements []string         `json:"improvements,omitempty"`
	EvaluatedAt  time.Time        `json:"evaluated_at"`
}

// ResultsSummary is the aggregate shown on the results step.
type ResultsSummary struct {
	Records []Result `json:"records"`
	Overall float64  `json:"overall"`
}

// Record returns the result for kind, if present.
func (s ResultsSummary) Record(kind SectionKind) (Result, bool) {
	for _, r := range s.Records {
		if r.Kind == kind {
			return r, true
		}
	}
	return Result{}, false
}
