// Package wizard implements the assessment wizard step machine.
//
// The wizard walks a candidate from the welcome screen through resume upload
// and analysis to a path choice at the jobs step. The quick-test path runs
// the aptitude, scenario-based and coding assessments and ends on results;
// the ai-interview path ends on the interview step. Every forward move is
// gated on the remote call for the current step having resolved, and Back
// follows a fixed predecessor table.
package wizard

import (
	"fmt"
	"strings"

	"github.com/jonathan/assessment-wizard/internal/types"
)

// Step identifies a wizard screen.
type Step string

// Wizard steps.
const (
	StepWelcome   Step = "welcome"
	StepUpload    Step = "upload"
	StepAnalysis  Step = "analysis"
	StepJobs      Step = "jobs"
	StepAptitude  Step = "aptitude"
	StepScenario  Step = "scenario-based"
	StepCoding    Step = "coding"
	StepResults   Step = "results"
	StepInterview Step = "interview"
)

// Steps returns every step in declaration order.
func Steps() []Step {
	return []Step{
		StepWelcome, StepUpload, StepAnalysis, StepJobs,
		StepAptitude, StepScenario, StepCoding, StepResults, StepInterview,
	}
}

// ParseStep parses a step name. The legacy "behavioral" name maps to scenario-based.
func ParseStep(s string) (Step, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "behavioral" {
		return StepScenario, nil
	}
	for _, st := range Steps() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown step: %q", s)
}

// Path is the branch chosen at the jobs step.
type Path string

// Paths. PathUnset means no path has been committed.
const (
	PathUnset       Path = ""
	PathQuickTest   Path = "quick-test"
	PathAIInterview Path = "ai-interview"
)

// ParsePath parses a path name.
func ParsePath(s string) (Path, error) {
	switch Path(strings.ToLower(strings.TrimSpace(s))) {
	case PathQuickTest:
		return PathQuickTest, nil
	case PathAIInterview:
		return PathAIInterview, nil
	}
	return PathUnset, fmt.Errorf("%w: %q", ErrPathNotSelected, s)
}

// backTable maps every step to its predecessor. welcome has none.
var backTable = map[Step]Step{
	StepUpload:    StepWelcome,
	StepAnalysis:  StepUpload,
	StepJobs:      StepAnalysis,
	StepAptitude:  StepJobs,
	StepScenario:  StepAptitude,
	StepCoding:    StepScenario,
	StepResults:   StepJobs,
	StepInterview: StepJobs,
}

// Back returns the predecessor of s.
func Back(s Step) (Step, error) {
	prev, ok := backTable[s]
	if !ok {
		if s == StepWelcome {
			return "", ErrNoPredecessor
		}
		return "", fmt.Errorf("unknown step: %q", s)
	}
	return prev, nil
}

// PathBound returns the path a step belongs to, or PathUnset for shared steps.
func (s Step) PathBound() Path {
	switch s {
	case StepAptitude, StepScenario, StepCoding, StepResults:
		return PathQuickTest
	case StepInterview:
		return PathAIInterview
	}
	return PathUnset
}

// Section returns the section kind for an assessment step.
func (s Step) Section() (types.SectionKind, bool) {
	switch s {
	case StepAptitude:
		return types.SectionAptitude, true
	case StepScenario:
		return types.SectionScenario, true
	case StepCoding:
		return types.SectionCoding, true
	}
	return "", false
}

// SectionStep returns the step running kind.
func SectionStep(kind types.SectionKind) (Step, bool) {
	switch kind {
	case types.SectionAptitude:
		return StepAptitude, true
	case types.SectionScenario:
		return StepScenario, true
	case types.SectionCoding:
		return StepCoding, true
	}
	return "", false
}

// Number returns the 1-based position of s in the progress indicator.
func (s Step) Number() int {
	switch s {
	case StepWelcome:
		return 1
	case StepUpload:
		return 2
	case StepAnalysis:
		return 3
	case StepJobs:
		return 4
	case StepAptitude, StepInterview:
		return 5
	case StepScenario:
		return 6
	case StepCoding:
		return 7
	case StepResults:
		return 8
	}
	return 0
}

// Title returns the heading shown for s.
func (s Step) Title() string {
	switch s {
	case StepWelcome:
		return "Welcome"
	case StepUpload:
		return "Upload Resume"
	case StepAnalysis:
		return "Resume Analysis"
	case StepJobs:
		return "Job Suggestions"
	case StepAptitude:
		return "Aptitude Test"
	case StepScenario:
		return "Scenario-Based Test"
	case StepCoding:
		return "Coding Challenge"
	case StepResults:
		return "Results"
	case StepInterview:
		return "AI Interview"
	}
	return string(s)
}
