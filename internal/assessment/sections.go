package assessment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/scoring"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// Generate fetches the questions for the active section and resets its answers.
func (c *Coordinator) Generate(ctx context.Context, kind types.SectionKind) ([]types.Question, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	err = c.wiz.RequireSection(wizard.OpGenerate, kind)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	step, _ := wizard.SectionStep(kind)
	questions, err := c.generate(ctx, kind)
	if err != nil {
		return nil, c.fail(step, err)
	}
	if err := c.transition(ctx, func(w *wizard.Wizard) error { return w.SetQuestions(kind, questions) }); err != nil {
		return nil, err
	}
	if section, ok := c.section(); ok {
		c.persist(ctx, kind.StorageKey(), section)
	}
	return questions, nil
}

func (c *Coordinator) generate(ctx context.Context, kind types.SectionKind) ([]types.Question, error) {
	role, skills := c.profile()
	skillText := apiclient.JoinSkills(skills)
	if skillText == "" {
		skillText = "General"
	}
	d := c.defaults

	switch kind {
	case types.SectionAptitude:
		return c.api.GenerateAptitude(ctx, types.AptitudeRequest{
			Count:        d.AptitudeCount,
			Difficulty:   d.AptitudeDifficulty,
			Topics:       d.AptitudeTopics,
			TopicWeights: d.TopicWeights,
		})
	case types.SectionScenario:
		return c.api.GenerateScenario(ctx, types.ScenarioRequest{
			Skills:   skillText,
			Level:    d.Level,
			JobRole:  role,
			TestType: d.ScenarioTestType,
			Company:  d.Company,
		})
	case types.SectionCoding:
		desc := d.JobDescription
		c.mu.Lock()
		if j, ok := c.wiz.Jobs(); ok && j.JobDescription != "" {
			desc = j.JobDescription
		}
		c.mu.Unlock()
		q, err := c.api.GenerateCoding(ctx, types.CodingRequest{
			Skills:         skillText,
			JobRole:        role,
			JobDescription: desc,
			Level:          d.Level,
			Company:        d.Company,
		})
		if err != nil {
			return nil, err
		}
		return []types.Question{q}, nil
	}
	return nil, fmt.Errorf("unknown section kind: %q", kind)
}

func (c *Coordinator) section() (wizard.SectionPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Section()
}

// Section returns the active quick-test section.
func (c *Coordinator) Section() (wizard.SectionPayload, bool) {
	return c.section()
}

// Answer records the answer to question i of the active section.
func (c *Coordinator) Answer(kind types.SectionKind, i int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Answer(kind, i, text)
}

// Submit evaluates the active section remotely, records the normalized
// result and advances to the next section or to results.
func (c *Coordinator) Submit(ctx context.Context, kind types.SectionKind) (*types.Result, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	err = c.wiz.RequireSection(wizard.OpSubmit, kind)
	section, _ := c.wiz.Section()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(section.Questions) == 0 {
		return nil, wizard.ErrQuestionsMissing
	}
	if strings.TrimSpace(section.Answers[len(section.Answers)-1]) == "" {
		return nil, ErrIncomplete
	}

	step, _ := wizard.SectionStep(kind)
	role, skills := c.profile()
	req := types.EvaluationRequest{
		Questions: section.Questions,
		Answers:   section.Answers,
		Skills:    skills,
		JobRole:   apiclient.SanitizeRole(role),
	}
	if kind == types.SectionCoding {
		req.Challenge = section.Questions[0].Text()
		req.Solution = section.Answers[0]
		req.Language = section.Questions[0].Language
		if req.Language == "" {
			req.Language = c.defaults.CodingLanguage
		}
	}

	ev, err := c.api.Evaluate(ctx, kind, req)
	if err != nil {
		return nil, c.fail(step, err)
	}
	result, err := c.result(kind, ev)
	if err != nil {
		return nil, c.fail(step, err)
	}

	section.Result = result
	if err := c.transition(ctx, func(w *wizard.Wizard) error { return w.CompleteSection(section) }); err != nil {
		return nil, err
	}
	c.persist(ctx, kind.StorageKey(), section)

	e := events.New(c.id, events.TypeSectionEvaluated)
	e.Data = map[string]any{"kind": kind, "score": result.Score}
	c.publish(ctx, e)
	c.logger.Info("section evaluated", zap.String("kind", string(kind)), zap.Float64("score", result.Score))
	return result, nil
}

// result normalizes an evaluation. An evaluation with no score, percentage or
// correct/total count is rejected rather than scored as zero.
func (c *Coordinator) result(kind types.SectionKind, ev *types.Evaluation) (*types.Result, error) {
	if ev.Score == nil && ev.Percentage == nil && ev.Total <= 0 {
		return nil, ErrNoScore
	}
	score, raw, maxScore := scoring.FromEvaluation(*ev)
	feedback := ev.Feedback
	if feedback == "" {
		feedback = ev.Evaluation
	}
	return &types.Result{
		Kind:         kind,
		Score:        score,
		RawScore:     raw,
		MaxScore:     maxScore,
		Items:        ev.Results,
		Feedback:     feedback,
		Strengths:    types.Strings(ev.Strengths),
		Improvements: types.Strings(ev.Improvements),
		EvaluatedAt:  c.now(),
	}, nil
}

// Insights are the follow-up analyses of a completed quick test.
type Insights struct {
	Gaps            *types.PerformanceGaps      `json:"performance_gaps,omitempty"`
	Recommendations *types.SkillRecommendations `json:"skill_recommendations,omitempty"`
}

// Results returns the three section records and the overall score.
func (c *Coordinator) Results() (wizard.ResultsPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Results()
}

// Insights fetches performance gaps and skill recommendations for the quick
// test results. They are fetched once and cached.
func (c *Coordinator) Insights(ctx context.Context) (*Insights, error) {
	c.mu.Lock()
	cached := c.insights
	results, err := c.wiz.Results()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	_, skills := c.profile()
	scores := types.PerformanceScores{OverallScore: results.Overall}
	var feedback []string
	var correct, total int
	for _, r := range results.Records {
		if r.Feedback != "" {
			feedback = append(feedback, r.Feedback)
		}
		for _, item := range r.Items {
			total++
			if item.Correct != nil && *item.Correct {
				correct++
			}
		}
	}
	scores.TotalQuestions = total
	if total > 0 {
		scores.Accuracy = scoring.Percent(correct, total)
	}

	gaps, recs, err := interview.FollowUps(ctx, c.api, scores, skills, feedback, c.logger)
	if err != nil {
		return nil, err
	}
	in := &Insights{Gaps: gaps, Recommendations: recs}
	c.mu.Lock()
	c.insights = in
	c.mu.Unlock()
	return in, nil
}
