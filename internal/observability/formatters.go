// Package observability renders assessment progress for the terminal.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer writes boxed summaries of wizard steps.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// list writes up to limit items as bullets with an overflow line.
func list(sb *strings.Builder, items []string, limit int) {
	count := min(len(items), limit)
	for i := 0; i < count; i++ {
		fmt.Fprintf(sb, "  • %s\n", items[i])
	}
	if len(items) > limit {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-limit)
	}
}

func labels(ls []types.Label) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = string(l)
	}
	return out
}

// PrintStep outputs the current step with its position in the wizard.
func (p *Printer) PrintStep(state wizard.State) {
	total := wizard.StepResults.Number()
	if state.Path == wizard.PathAIInterview {
		total = wizard.StepInterview.Number()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Step %d of %d: %s\n", state.Step.Number(), total, state.Step.Title())
	if state.Path != wizard.PathUnset {
		fmt.Fprintf(&sb, "Path:   %s\n", state.Path)
	}
	if len(state.Completed) > 0 {
		done := make([]string, len(state.Completed))
		for i, s := range state.Completed {
			done[i] = s.Kind.Title()
		}
		fmt.Fprintf(&sb, "Done:   %s\n", strings.Join(done, ", "))
	}
	if state.Error != "" {
		fmt.Fprintf(&sb, "Error:  %s\n", state.Error)
	}
	p.printBox("ASSESSMENT PROGRESS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAnalysis outputs the resume analysis and role suggestions.
func (p *Printer) PrintAnalysis(a *wizard.AnalysisPayload) {
	if a == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:   %s\n", a.Status)
	if a.Suggestions.PrimaryRole != "" {
		fmt.Fprintf(&sb, "Role:     %s", a.Suggestions.PrimaryRole)
		if a.Suggestions.MatchPercentage > 0 {
			fmt.Fprintf(&sb, " (%.0f%% match)", a.Suggestions.MatchPercentage)
		}
		sb.WriteString("\n")
	}
	if a.ErrorMessage != "" {
		fmt.Fprintf(&sb, "Error:    %s\n", a.ErrorMessage)
	}
	if len(a.Skills) > 0 {
		sb.WriteString("\nSkills:\n")
		list(&sb, a.Skills, maxItemsToShow)
	}
	if len(a.Suggestions.AdditionalRoles) > 0 {
		sb.WriteString("\nAlso consider:\n")
		list(&sb, a.Suggestions.AdditionalRoles, 3)
	}

	p.printBox("RESUME ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJobs outputs the available job listings.
func (p *Printer) PrintJobs(jobs []types.Job) {
	if len(jobs) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(jobs), maxItemsToShow)
	for i := 0; i < count; i++ {
		job := jobs[i]
		fmt.Fprintf(&sb, "#%d  %s", i+1, job.Title)
		if job.Company != "" {
			fmt.Fprintf(&sb, " at %s", job.Company)
		}
		sb.WriteString("\n")
		if len(job.RequiredSkills) > 0 {
			fmt.Fprintf(&sb, "    Skills: %s\n", truncate(strings.Join(job.RequiredSkills, ", "), 40))
		}
	}
	if len(jobs) > maxItemsToShow {
		fmt.Fprintf(&sb, "... and %d more jobs\n", len(jobs)-maxItemsToShow)
	}

	p.printBox("JOB LISTINGS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuestion writes question i without a box so long prompts stay readable.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintQuestion(i, total int, q types.Question) {
	fmt.Fprintf(p.out, "\nQuestion %d of %d", i+1, total)
	if q.Topic != "" {
		fmt.Fprintf(p.out, " [%s]", q.Topic)
	}
	fmt.Fprintln(p.out)
	if q.Scenario != "" {
		fmt.Fprintf(p.out, "%s\n\n", q.Scenario)
	}
	if q.Title != "" {
		fmt.Fprintf(p.out, "%s\n", q.Title)
	}
	if q.Description != "" {
		fmt.Fprintf(p.out, "%s\n", q.Description)
	}
	if q.Prompt != "" {
		fmt.Fprintf(p.out, "%s\n", q.Prompt)
	}
	for j, opt := range q.Options {
		fmt.Fprintf(p.out, "  %c) %s\n", 'A'+j, opt)
	}
	for _, c := range q.Constraints {
		fmt.Fprintf(p.out, "  - %s\n", c)
	}
	if q.StarterCode != "" {
		fmt.Fprintf(p.out, "\n%s\n", q.StarterCode)
	}
}

// PrintResult outputs one section's evaluation.
func (p *Printer) PrintResult(r *types.Result) {
	if r == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Score:    %.0f%%\n", r.Score)
	if r.Feedback != "" {
		fmt.Fprintf(&sb, "\n%s\n", r.Feedback)
	}
	if len(r.Strengths) > 0 {
		sb.WriteString("\nStrengths:\n")
		list(&sb, r.Strengths, 3)
	}
	if len(r.Improvements) > 0 {
		sb.WriteString("\nTo improve:\n")
		list(&sb, r.Improvements, 3)
	}

	p.printBox(strings.ToUpper(r.Kind.Title())+" RESULT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResults outputs the quick test summary.
func (p *Printer) PrintResults(res wizard.ResultsPayload) {
	var sb strings.Builder
	for _, r := range res.Records {
		fmt.Fprintf(&sb, "%-20s %5.0f%%\n", r.Kind.Title(), r.Score)
	}
	fmt.Fprintf(&sb, "\n%-20s %5.0f%%", "Overall", res.Overall)
	p.printBox("ASSESSMENT RESULTS", sb.String())
}

// PrintInsights outputs performance gaps and learning recommendations.
func (p *Printer) PrintInsights(gaps *types.PerformanceGaps, recs *types.SkillRecommendations) {
	if gaps == nil && recs == nil {
		return
	}

	var sb strings.Builder
	if gaps != nil && len(gaps.AreasForImprovement) > 0 {
		sb.WriteString("Gaps:\n")
		list(&sb, labels(gaps.AreasForImprovement), maxItemsToShow)
	}
	if recs != nil {
		if len(recs.LearningPaths) > 0 {
			sb.WriteString("Learning paths:\n")
			list(&sb, labels(recs.LearningPaths), 3)
		}
		if len(recs.PracticeProjects) > 0 {
			sb.WriteString("Practice projects:\n")
			list(&sb, labels(recs.PracticeProjects), 3)
		}
	}
	if sb.Len() == 0 {
		return
	}

	p.printBox("NEXT STEPS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintTurn writes one line of the interview transcript.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintTurn(t types.Turn) {
	speaker := "Interviewer"
	if t.Type == types.TurnResponse {
		speaker = "You"
	}
	fmt.Fprintf(p.out, "%s: %s\n", speaker, t.Content)
}

// PrintMetrics outputs body-language scores.
func (p *Printer) PrintMetrics(m *types.FrameMetrics) {
	if m == nil {
		return
	}

	var sb strings.Builder
	rows := []struct {
		name  string
		value float64
	}{
		{"Confidence", m.Confidence},
		{"Eye contact", m.EyeContact},
		{"Posture", m.Posture},
		{"Head movement", m.HeadMovement},
		{"Expression", m.FacialExpression},
		{"Gestures", m.HandGestures},
	}
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-16s %5.1f\n", r.name, r.value)
	}
	if len(m.Suggestions) > 0 {
		sb.WriteString("\n")
		list(&sb, m.Suggestions, 3)
	}

	p.printBox("BODY LANGUAGE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCompletion outputs the final interview analysis.
func (p *Printer) PrintCompletion(c *interview.Completion) {
	if c == nil {
		return
	}

	var sb strings.Builder
	if a := c.Analysis; a != nil {
		if a.OverallScore != nil {
			fmt.Fprintf(&sb, "Score:    %.1f\n", *a.OverallScore)
		}
		if a.Summary != "" {
			fmt.Fprintf(&sb, "%s\n", a.Summary)
		}
		if len(a.Strengths) > 0 {
			sb.WriteString("\nStrengths:\n")
			list(&sb, labels(a.Strengths), 3)
		}
		if len(a.Improvements) > 0 {
			sb.WriteString("\nTo improve:\n")
			list(&sb, labels(a.Improvements), 3)
		}
	}
	if len(c.Feedback) > 0 {
		sb.WriteString("\nFeedback:\n")
		list(&sb, c.Feedback, 3)
	}
	if sb.Len() == 0 {
		sb.WriteString("Interview complete.")
	}

	p.printBox("INTERVIEW ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
	p.PrintMetrics(c.Metrics)
	p.PrintInsights(c.Gaps, c.Recommendations)
}
