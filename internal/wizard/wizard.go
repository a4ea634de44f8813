package wizard

import (
	"fmt"
	"strings"

	"github.com/jonathan/assessment-wizard/internal/scoring"
	"github.com/jonathan/assessment-wizard/internal/types"
)

// Op names an operation gated by the current step.
type Op string

// Gated operations.
const (
	OpStart             Op = "start"
	OpUploadResume      Op = "upload resume"
	OpAwaitAnalysis     Op = "await analysis"
	OpSkipAnalysis      Op = "skip analysis"
	OpSelectPath        Op = "select path"
	OpGenerate          Op = "generate questions"
	OpAnswer            Op = "answer"
	OpSubmit            Op = "submit answers"
	OpStartInterview    Op = "start interview"
	OpReply             Op = "reply"
	OpCompleteInterview Op = "complete interview"
	OpReport            Op = "build report"
	OpBack              Op = "go back"
)

// allowedSteps lists the steps on which each operation may run.
var allowedSteps = map[Op][]Step{
	OpStart:             {StepWelcome},
	OpUploadResume:      {StepUpload},
	OpAwaitAnalysis:     {StepAnalysis},
	OpSkipAnalysis:      {StepAnalysis},
	OpSelectPath:        {StepJobs},
	OpGenerate:          {StepAptitude, StepScenario, StepCoding},
	OpAnswer:            {StepAptitude, StepScenario, StepCoding},
	OpSubmit:            {StepAptitude, StepScenario, StepCoding},
	OpStartInterview:    {StepInterview},
	OpReply:             {StepInterview},
	OpCompleteInterview: {StepInterview},
	OpReport:            {StepResults, StepInterview},
	OpBack:              {StepUpload, StepAnalysis, StepJobs, StepAptitude, StepScenario, StepCoding, StepResults, StepInterview},
}

// Wizard is the step machine. It is not safe for concurrent use; callers
// serialize access.
type Wizard struct {
	stage    Stage
	path     Path
	upload   *UploadPayload
	analysis *AnalysisPayload
	jobs     *JobsPayload
	sections map[types.SectionKind]SectionPayload
	lastErr  error
}

// New returns a wizard on the welcome step.
func New() *Wizard {
	return &Wizard{
		stage:    WelcomeStage{},
		sections: make(map[types.SectionKind]SectionPayload),
	}
}

// Current returns the active step.
func (w *Wizard) Current() Step {
	return w.stage.Step()
}

// Stage returns the active stage.
func (w *Wizard) Stage() Stage {
	return w.stage
}

// Path returns the committed path.
func (w *Wizard) Path() Path {
	return w.path
}

// Err returns the last error recorded on the current step.
func (w *Wizard) Err() error {
	return w.lastErr
}

// Upload returns the upload payload, if any.
func (w *Wizard) Upload() (UploadPayload, bool) {
	if w.upload == nil {
		return UploadPayload{}, false
	}
	return *w.upload, true
}

// Analysis returns the analysis payload, if any.
func (w *Wizard) Analysis() (AnalysisPayload, bool) {
	if w.analysis == nil {
		return AnalysisPayload{}, false
	}
	return *w.analysis, true
}

// Jobs returns the jobs payload committed with the path.
func (w *Wizard) Jobs() (JobsPayload, bool) {
	if w.jobs == nil {
		return JobsPayload{}, false
	}
	return *w.jobs, true
}

// Allowed reports whether op may run on the current step.
func (w *Wizard) Allowed(op Op) bool {
	cur := w.Current()
	for _, s := range allowedSteps[op] {
		if s == cur {
			return true
		}
	}
	return false
}

// Require returns a TransitionError unless op may run on the current step.
func (w *Wizard) Require(op Op) error {
	if !w.Allowed(op) {
		return &TransitionError{From: w.Current(), Op: op}
	}
	return nil
}

// RequireSection is Require for section operations, also checking the kind.
func (w *Wizard) RequireSection(op Op, kind types.SectionKind) error {
	if err := w.Require(op); err != nil {
		return err
	}
	if st, ok := w.stage.(SectionStage); !ok || st.Section.Kind != kind {
		return &TransitionError{From: w.Current(), Op: Op(fmt.Sprintf("%s for %s", op, kind))}
	}
	return nil
}

// Fail records err against step without moving. It is ignored when step is
// no longer current, so late failures cannot leak onto a newer step.
func (w *Wizard) Fail(step Step, err error) {
	if step == w.Current() {
		w.lastErr = err
	}
}

func (w *Wizard) moveTo(s Stage) {
	w.stage = s
	w.lastErr = nil
}

// Start moves from welcome to upload.
func (w *Wizard) Start() error {
	if err := w.Require(OpStart); err != nil {
		return err
	}
	w.moveTo(UploadStage{})
	return nil
}

// CompleteUpload records a successful upload and moves to analysis.
func (w *Wizard) CompleteUpload(p UploadPayload) error {
	if err := w.Require(OpUploadResume); err != nil {
		return err
	}
	if strings.TrimSpace(p.ResumeID) == "" {
		w.lastErr = ErrMissingResumeID
		return ErrMissingResumeID
	}
	w.upload = &p
	w.analysis = nil
	w.moveTo(AnalysisStage{ResumeID: p.ResumeID})
	return nil
}

// CompleteAnalysis records a terminal analysis. COMPLETE moves to jobs;
// FAILED stays on analysis and returns an AnalysisFailedError.
func (w *Wizard) CompleteAnalysis(p AnalysisPayload) error {
	if err := w.Require(OpAwaitAnalysis); err != nil {
		return err
	}
	switch p.Status {
	case types.AnalysisComplete:
		if p.ResumeID == "" && w.upload != nil {
			p.ResumeID = w.upload.ResumeID
		}
		w.analysis = &p
		w.moveTo(JobsStage{})
		return nil
	case types.AnalysisFailed:
		err := &AnalysisFailedError{Message: p.ErrorMessage}
		w.lastErr = err
		return err
	default:
		return ErrAnalysisPending
	}
}

// SkipAnalysis moves from analysis to jobs without an analysis result.
func (w *Wizard) SkipAnalysis() error {
	if err := w.Require(OpSkipAnalysis); err != nil {
		return err
	}
	w.moveTo(JobsStage{})
	return nil
}

// SelectPath commits a path at the jobs step and enters its first step.
func (w *Wizard) SelectPath(p Path, jobs JobsPayload) error {
	if err := w.Require(OpSelectPath); err != nil {
		return err
	}
	if p != PathQuickTest && p != PathAIInterview {
		w.lastErr = ErrPathNotSelected
		return ErrPathNotSelected
	}
	w.path = p
	w.jobs = &jobs
	w.sections = make(map[types.SectionKind]SectionPayload)

	if p == PathQuickTest {
		w.moveTo(SectionStage{Section: SectionPayload{Kind: types.SectionAptitude}})
		return nil
	}
	w.moveTo(InterviewStage{})
	return nil
}

// Section returns the payload of the active section.
func (w *Wizard) Section() (SectionPayload, bool) {
	st, ok := w.stage.(SectionStage)
	if !ok {
		return SectionPayload{}, false
	}
	return st.Section.clone(), true
}

// SetQuestions attaches generated questions to the active section and resets
// its answers to one empty slot per question.
func (w *Wizard) SetQuestions(kind types.SectionKind, questions []types.Question) error {
	if err := w.RequireSection(OpGenerate, kind); err != nil {
		return err
	}
	if len(questions) == 0 {
		return ErrQuestionsMissing
	}
	st := w.stage.(SectionStage)
	sheet := types.NewAnswerSheet(kind, questions)
	st.Section.Questions = sheet.Questions
	st.Section.Answers = sheet.Answers
	st.Section.Result = nil
	w.moveTo(st)
	return nil
}

// Answer stores the answer to question i of the active section.
func (w *Wizard) Answer(kind types.SectionKind, i int, answer string) error {
	if err := w.RequireSection(OpAnswer, kind); err != nil {
		return err
	}
	st := w.stage.(SectionStage)
	if len(st.Section.Questions) == 0 {
		return ErrQuestionsMissing
	}
	sheet := st.Section.Sheet()
	if err := sheet.SetAnswer(i, answer); err != nil {
		return err
	}
	st.Section.Answers = sheet.Answers
	w.stage = st
	return nil
}

// CompleteSection records an evaluated section and advances:
// aptitude to scenario-based, scenario-based to coding, coding to results.
func (w *Wizard) CompleteSection(p SectionPayload) error {
	if err := w.RequireSection(OpSubmit, p.Kind); err != nil {
		return err
	}
	if len(p.Questions) == 0 {
		return ErrQuestionsMissing
	}
	if len(p.Answers) != len(p.Questions) {
		return fmt.Errorf("%w: %d answers for %d questions", types.ErrAnswerIndex, len(p.Answers), len(p.Questions))
	}
	if p.Result == nil {
		return ErrResultMissing
	}
	p = p.clone()
	p.Result.Kind = p.Kind
	p.Result.Score = scoring.Clamp(p.Result.Score)
	w.sections[p.Kind] = p

	switch p.Kind {
	case types.SectionAptitude:
		w.enterSection(types.SectionScenario)
	case types.SectionScenario:
		w.enterSection(types.SectionCoding)
	default:
		w.moveTo(ResultsStage{Results: w.results()})
	}
	return nil
}

// enterSection shows kind, restoring its earlier payload when the candidate
// went back to it.
func (w *Wizard) enterSection(kind types.SectionKind) {
	if prev, ok := w.sections[kind]; ok {
		w.moveTo(SectionStage{Section: prev.clone()})
		return
	}
	w.moveTo(SectionStage{Section: SectionPayload{Kind: kind}})
}

// Records returns the evaluated sections in quick-test order.
func (w *Wizard) Records() []types.Result {
	records := make([]types.Result, 0, len(w.sections))
	for _, kind := range types.SectionKinds() {
		if p, ok := w.sections[kind]; ok && p.Result != nil {
			records = append(records, *p.Result)
		}
	}
	return records
}

// CompletedSection returns the evaluated payload for kind.
func (w *Wizard) CompletedSection(kind types.SectionKind) (SectionPayload, bool) {
	p, ok := w.sections[kind]
	if !ok {
		return SectionPayload{}, false
	}
	return p.clone(), true
}

func (w *Wizard) results() ResultsPayload {
	summary := scoring.ResultsSummary(w.Records())
	return ResultsPayload{Records: summary.Records, Overall: summary.Overall}
}

// Results returns the summary while on the results step.
func (w *Wizard) Results() (ResultsPayload, error) {
	st, ok := w.stage.(ResultsStage)
	if !ok {
		return ResultsPayload{}, &TransitionError{From: w.Current(), Op: "show results"}
	}
	return st.Results, nil
}

// Interview returns the interview payload while on the interview step.
func (w *Wizard) Interview() (InterviewPayload, bool) {
	st, ok := w.stage.(InterviewStage)
	if !ok {
		return InterviewPayload{}, false
	}
	p := st.Interview
	p.History = append([]types.Turn(nil), p.History...)
	return p, true
}

// BeginInterview records the session id and first question.
func (w *Wizard) BeginInterview(sessionID string, first types.Turn) error {
	if err := w.Require(OpStartInterview); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return ErrNoSession
	}
	st := w.stage.(InterviewStage)
	st.Interview = InterviewPayload{
		SessionID: sessionID,
		History:   []types.Turn{first},
		StartedAt: first.Timestamp,
	}
	w.moveTo(st)
	return nil
}

// RecordTurns appends turns to the interview history.
func (w *Wizard) RecordTurns(turns ...types.Turn) error {
	if err := w.Require(OpReply); err != nil {
		return err
	}
	st := w.stage.(InterviewStage)
	if st.Interview.SessionID == "" {
		return ErrNoSession
	}
	st.Interview.History = append(append([]types.Turn(nil), st.Interview.History...), turns...)
	w.stage = st
	return nil
}

// CompleteInterview records the final interview state. The payload must be final.
func (w *Wizard) CompleteInterview(p InterviewPayload) error {
	if err := w.Require(OpCompleteInterview); err != nil {
		return err
	}
	st := w.stage.(InterviewStage)
	if p.SessionID == "" {
		p.SessionID = st.Interview.SessionID
	}
	if p.SessionID == "" {
		return ErrNoSession
	}
	if !p.Final {
		return ErrNotFinal
	}
	if len(p.History) == 0 {
		p.History = st.Interview.History
	}
	if p.StartedAt.IsZero() {
		p.StartedAt = st.Interview.StartedAt
	}
	st.Interview = p
	w.moveTo(st)
	return nil
}

// Back moves to the predecessor step. Returning to jobs clears the committed
// path and everything recorded under it.
func (w *Wizard) Back() (Step, error) {
	prev, err := Back(w.Current())
	if err != nil {
		return "", err
	}

	switch prev {
	case StepWelcome:
		w.moveTo(WelcomeStage{})
	case StepUpload:
		w.moveTo(UploadStage{})
	case StepAnalysis:
		id := ""
		if w.upload != nil {
			id = w.upload.ResumeID
		}
		w.moveTo(AnalysisStage{ResumeID: id})
	case StepJobs:
		w.path = PathUnset
		w.jobs = nil
		w.sections = make(map[types.SectionKind]SectionPayload)
		w.moveTo(JobsStage{})
	default:
		kind, _ := prev.Section()
		w.enterSection(kind)
	}
	return prev, nil
}
