package reports

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/jonathan/assessment-wizard/internal/scoring"
	"github.com/jonathan/assessment-wizard/internal/types"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"pct": func(v float64) string {
		return fmt.Sprintf("%.0f%%", math.Round(v))
	},
	"date": func(t time.Time) string {
		return t.Format("January 2, 2006 15:04 MST")
	},
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// View is the data passed to the report template.
type View struct {
	Title           string
	Type            string
	Role            string
	GeneratedAt     time.Time
	Duration        time.Duration
	Score           float64
	HasScore        bool
	Summary         string
	Sections        []SectionView
	Metrics         *types.FrameMetrics
	Strengths       []string
	Gaps            []string
	Recommendations []string
	History         []types.Turn
}

// SectionView is one quick-test row.
type SectionView struct {
	Title    string
	Score    float64
	Feedback string
}

// NewView flattens an input into template data. summary may be empty.
func NewView(in Input, summary string) View {
	v := View{
		Title:       "Assessment Report",
		Type:        in.Type,
		Role:        in.Role,
		GeneratedAt: in.GeneratedAt,
		Duration:    in.Duration(),
		Summary:     summary,
	}
	v.Score, v.HasScore = in.Score()

	for _, r := range in.Results {
		v.Sections = append(v.Sections, SectionView{Title: r.Kind.Title(), Score: r.Score, Feedback: r.Feedback})
		v.Strengths = append(v.Strengths, r.Strengths...)
	}
	if iv := in.Interview; iv != nil {
		v.Title = "AI Interview Report"
		v.History = iv.History
		v.Metrics = iv.Metrics
		if a := iv.Analysis; a != nil {
			if v.Summary == "" {
				v.Summary = a.Summary
			}
			v.Strengths = append(v.Strengths, types.Strings(a.Strengths)...)
			v.Recommendations = append(v.Recommendations, types.Strings(a.Recommendations)...)
		}
	}
	if g := in.Gaps; g != nil {
		v.Gaps = types.Strings(g.AreasForImprovement)
		v.Strengths = append(v.Strengths, types.Strings(g.Strengths)...)
	}
	if r := in.Recs; r != nil {
		v.Recommendations = append(v.Recommendations, types.Strings(r.LearningPaths)...)
		v.Recommendations = append(v.Recommendations, types.Strings(r.PracticeProjects)...)
		if v.Summary == "" {
			v.Summary = r.AssessmentSummary
		}
	}
	return v
}

// RenderHTML renders the report page.
func RenderHTML(v View) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, v); err != nil {
		return nil, &TemplateError{Message: "failed to execute template", Cause: err}
	}
	return buf.Bytes(), nil
}

func normalize(raw float64) float64 {
	return scoring.Normalize(raw, 0)
}
