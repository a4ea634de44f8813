package assessment

import (
	"context"
	"errors"

	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// ErrReportsDisabled is returned when no report builder is configured.
var ErrReportsDisabled = errors.New("reports are not configured")

// ReportInput collects what the current step knows into a report input.
func (c *Coordinator) ReportInput() (reports.Input, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.wiz.Require(wizard.OpReport); err != nil {
		return reports.Input{}, err
	}

	in := reports.Input{
		SessionID:   c.id,
		Type:        string(c.wiz.Path()),
		StartedAt:   c.startedAt,
		GeneratedAt: c.now().UTC(),
	}
	if j, ok := c.wiz.Jobs(); ok {
		in.Role = j.SuggestedRole
		in.Jobs = []types.Job{{Title: j.SuggestedRole, MatchPercentage: j.MatchPercentage}}
		for _, r := range j.AdditionalRoles {
			in.Jobs = append(in.Jobs, types.Job{Title: r})
		}
	}
	if a, ok := c.wiz.Analysis(); ok {
		in.Skills = a.Skills
	}

	switch c.wiz.Current() {
	case wizard.StepResults:
		res, err := c.wiz.Results()
		if err != nil {
			return reports.Input{}, err
		}
		in.Results, in.Overall = res.Records, res.Overall
		if c.insights != nil {
			in.Gaps, in.Recs = c.insights.Gaps, c.insights.Recommendations
		}
	case wizard.StepInterview:
		payload, _ := c.wiz.Interview()
		if payload.SessionID == "" {
			return reports.Input{}, wizard.ErrNoSession
		}
		iv := &reports.Interview{SessionID: payload.SessionID, History: payload.History, Analysis: payload.Analysis}
		if !payload.StartedAt.IsZero() {
			in.StartedAt = payload.StartedAt
		}
		if c.completion != nil {
			iv.Metrics = c.completion.Metrics
			in.Gaps, in.Recs = c.completion.Gaps, c.completion.Recommendations
		} else if c.iv != nil {
			iv.Metrics = c.iv.Metrics()
		}
		in.Interview = iv
	}
	return in, nil
}

// Report builds the report for the results or interview step.
func (c *Coordinator) Report(ctx context.Context, opts reports.Options) (*reports.Document, error) {
	if c.reports == nil {
		return nil, ErrReportsDisabled
	}
	in, err := c.ReportInput()
	if err != nil {
		return nil, err
	}
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return c.reports.Build(ctx, in, opts)
}
