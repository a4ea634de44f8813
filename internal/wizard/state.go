package wizard

import (
	"fmt"

	"github.com/jonathan/assessment-wizard/internal/types"
)

// StateVersion is the current snapshot layout version.
const StateVersion = 2

// State is the serializable snapshot of a wizard.
type State struct {
	Version   int               `json:"version"`
	Step      Step              `json:"step"`
	Path      Path              `json:"path,omitempty"`
	Upload    *UploadPayload    `json:"upload,omitempty"`
	Analysis  *AnalysisPayload  `json:"analysis,omitempty"`
	Jobs      *JobsPayload      `json:"jobs,omitempty"`
	Section   *SectionPayload   `json:"section,omitempty"`
	Completed []SectionPayload  `json:"completed,omitempty"`
	Results   *ResultsPayload   `json:"results,omitempty"`
	Interview *InterviewPayload `json:"interview,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Snapshot captures the wizard state.
func (w *Wizard) Snapshot() State {
	s := State{
		Version: StateVersion,
		Step:    w.Current(),
		Path:    w.path,
	}
	if w.upload != nil {
		u := *w.upload
		s.Upload = &u
	}
	if w.analysis != nil {
		a := *w.analysis
		s.Analysis = &a
	}
	if w.jobs != nil {
		j := *w.jobs
		s.Jobs = &j
	}
	for _, kind := range types.SectionKinds() {
		if p, ok := w.sections[kind]; ok {
			s.Completed = append(s.Completed, p.clone())
		}
	}
	switch st := w.stage.(type) {
	case SectionStage:
		p := st.Section.clone()
		s.Section = &p
	case ResultsStage:
		r := st.Results
		s.Results = &r
	case InterviewStage:
		iv, _ := w.Interview()
		s.Interview = &iv
	}
	if w.lastErr != nil {
		s.Error = w.lastErr.Error()
	}
	return s
}

// Restore rebuilds a wizard from a snapshot, rejecting inconsistent states.
func Restore(s State) (*Wizard, error) {
	w := New()

	if bound := s.Step.PathBound(); bound != PathUnset && s.Path != bound {
		return nil, fmt.Errorf("%w: step %s requires path %s, got %q", ErrInvalidState, s.Step, bound, s.Path)
	}
	if s.Path != PathUnset && s.Path != PathQuickTest && s.Path != PathAIInterview {
		return nil, fmt.Errorf("%w: unknown path %q", ErrInvalidState, s.Path)
	}
	w.path = s.Path

	if s.Upload != nil {
		u := *s.Upload
		w.upload = &u
	}
	if s.Analysis != nil {
		a := *s.Analysis
		w.analysis = &a
	}
	if s.Jobs != nil {
		j := *s.Jobs
		w.jobs = &j
	}
	if s.Path == PathQuickTest {
		for _, p := range s.Completed {
			if !p.Kind.Valid() {
				return nil, fmt.Errorf("%w: unknown section %q", ErrInvalidState, p.Kind)
			}
			w.sections[p.Kind] = p.clone()
		}
	}

	switch s.Step {
	case StepWelcome:
		w.stage = WelcomeStage{}
	case StepUpload:
		w.stage = UploadStage{}
	case StepAnalysis:
		if w.upload == nil {
			return nil, fmt.Errorf("%w: analysis step without upload", ErrInvalidState)
		}
		w.stage = AnalysisStage{ResumeID: w.upload.ResumeID}
	case StepJobs:
		w.path = PathUnset
		w.jobs = nil
		w.sections = make(map[types.SectionKind]SectionPayload)
		w.stage = JobsStage{}
	case StepAptitude, StepScenario, StepCoding:
		kind, _ := s.Step.Section()
		section := SectionPayload{Kind: kind}
		if s.Section != nil {
			if s.Section.Kind != kind {
				return nil, fmt.Errorf("%w: section %q on step %s", ErrInvalidState, s.Section.Kind, s.Step)
			}
			section = s.Section.clone()
			if len(section.Answers) != len(section.Questions) {
				section.Answers = section.Sheet().Answers
			}
		}
		w.stage = SectionStage{Section: section}
	case StepResults:
		w.stage = ResultsStage{Results: w.results()}
	case StepInterview:
		iv := InterviewPayload{}
		if s.Interview != nil {
			iv = *s.Interview
			iv.History = append([]types.Turn(nil), s.Interview.History...)
		}
		w.stage = InterviewStage{Interview: iv}
	default:
		return nil, fmt.Errorf("%w: unknown step %q", ErrInvalidState, s.Step)
	}
	return w, nil
}
