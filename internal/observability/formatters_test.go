package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

func TestPrintStep(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintStep(wizard.State{
		Step:      wizard.StepCoding,
		Path:      wizard.PathQuickTest,
		Completed: []wizard.SectionPayload{{Kind: types.SectionAptitude}, {Kind: types.SectionScenario}},
	})
	output := buf.String()

	assert.Contains(t, output, "ASSESSMENT PROGRESS")
	assert.Contains(t, output, "Step 7 of 8")
	assert.Contains(t, output, "quick-test")
	assert.Contains(t, output, "Aptitude Test, Scenario-Based Test")
}

func TestPrintStep_InterviewPath(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintStep(wizard.State{Step: wizard.StepInterview, Path: wizard.PathAIInterview, Error: "camera denied"})

	assert.Contains(t, buf.String(), "Step 5 of 5")
	assert.Contains(t, buf.String(), "camera denied")
}

func TestPrintAnalysis(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintAnalysis(&wizard.AnalysisPayload{
		Status: types.AnalysisComplete,
		Skills: []string{"Go", "SQL", "Kafka", "Docker", "AWS", "Terraform", "gRPC"},
		Suggestions: types.JobSuggestions{
			PrimaryRole:     "Backend Engineer",
			AdditionalRoles: []string{"SRE"},
			MatchPercentage: 88,
		},
	})
	output := buf.String()

	assert.Contains(t, output, "RESUME ANALYSIS")
	assert.Contains(t, output, "Backend Engineer (88% match)")
	assert.Contains(t, output, "Kafka")
	assert.Contains(t, output, "... and 2 more")
	assert.NotContains(t, output, "gRPC")
	assert.Contains(t, output, "SRE")
}

func TestPrintAnalysis_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintAnalysis(nil)
	assert.Empty(t, buf.String())
}

func TestPrintJobs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJobs([]types.Job{
		{Title: "Backend Engineer", Company: "Acme", RequiredSkills: []string{"Go", "PostgreSQL"}},
		{Title: "SRE"},
	})
	output := buf.String()

	assert.Contains(t, output, "#1  Backend Engineer at Acme")
	assert.Contains(t, output, "Go, PostgreSQL")
	assert.Contains(t, output, "#2  SRE")

	buf.Reset()
	p.PrintJobs(nil)
	assert.Empty(t, buf.String())
}

func TestPrintQuestion(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintQuestion(0, 10, types.Question{Prompt: "2 + 2?", Topic: "arithmetic", Options: []string{"3", "4"}})
	output := buf.String()

	assert.Contains(t, output, "Question 1 of 10 [arithmetic]")
	assert.Contains(t, output, "A) 3")
	assert.Contains(t, output, "B) 4")
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintResults(wizard.ResultsPayload{
		Records: []types.Result{
			{Kind: types.SectionAptitude, Score: 70},
			{Kind: types.SectionScenario, Score: 85},
			{Kind: types.SectionCoding, Score: 100},
		},
		Overall: 85,
	})
	output := buf.String()

	assert.Contains(t, output, "ASSESSMENT RESULTS")
	assert.Contains(t, output, "Coding Challenge")
	assert.Contains(t, output, "85%")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintResult(&types.Result{
		Kind:      types.SectionCoding,
		Score:     72,
		Feedback:  "Solid approach.",
		Strengths: []string{"Clear naming"},
	})
	output := buf.String()

	assert.Contains(t, output, "CODING CHALLENGE RESULT")
	assert.Contains(t, output, "72%")
	assert.Contains(t, output, "Clear naming")
}

func TestPrintCompletion(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	score := 8.0
	p.PrintCompletion(&interview.Completion{
		Analysis: &types.InterviewAnalysis{OverallScore: &score, Summary: "Clear communicator"},
		Metrics:  &types.FrameMetrics{Confidence: 90, EyeContact: 75},
		Gaps:     &types.PerformanceGaps{AreasForImprovement: []types.Label{"Depth on databases"}},
	})
	output := buf.String()

	assert.Contains(t, output, "INTERVIEW ANALYSIS")
	assert.Contains(t, output, "Score:    8.0")
	assert.Contains(t, output, "BODY LANGUAGE")
	assert.Contains(t, output, "Eye contact")
	assert.Contains(t, output, "NEXT STEPS")
	assert.Contains(t, output, "Depth on databases")
}

func TestPrintTurn(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.PrintTurn(types.Turn{Type: types.TurnQuestion, Content: "Why Go?"})
	p.PrintTurn(types.Turn{Type: types.TurnResponse, Content: "Simplicity."})

	assert.Equal(t, "Interviewer: Why Go?\nYou: Simplicity.\n", buf.String())
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.printBox("TITLE", strings.Repeat("é", 100))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.Equal(t, boxWidth, len([]rune(line)), line)
	}
	assert.Contains(t, buf.String(), "...")
}
