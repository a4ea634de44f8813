package apiclient

import (
	"context"
	"fmt"

	"github.com/jonathan/assessment-wizard/internal/types"
	embedded "github.com/jonathan/assessment-wizard/schemas"
)

// MaxJobDescriptionLen bounds the job description sent with a coding request.
const MaxJobDescriptionLen = 4000

// Wire paths per section. The scenario-based section keeps its legacy
// "behavioral" endpoint names.
var sectionPaths = map[types.SectionKind]struct{ generate, evaluate string }{
	types.SectionAptitude: {"/generate_aptitude", "/evaluate_aptitude"},
	types.SectionScenario: {"/generate_behavioral_questions", "/evaluate_behavioral"},
	types.SectionCoding:   {"/generate_challenge", "/evaluate_code"},
}

type questionList struct {
	Questions []types.Question `json:"questions"`
}

// GenerateAptitude generates aptitude questions.
func (c *Client) GenerateAptitude(ctx context.Context, req types.AptitudeRequest) ([]types.Question, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid aptitude request: %w", err)
	}
	return c.generateQuestions(ctx, sectionPaths[types.SectionAptitude].generate, req)
}

// GenerateScenario generates scenario-based questions. Skills and role are sanitized first.
func (c *Client) GenerateScenario(ctx context.Context, req types.ScenarioRequest) ([]types.Question, error) {
	req.Skills = SanitizeSkills(req.Skills)
	req.JobRole = SanitizeRole(req.JobRole)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario request: %w", err)
	}
	return c.generateQuestions(ctx, sectionPaths[types.SectionScenario].generate, req)
}

func (c *Client) generateQuestions(ctx context.Context, path string, req any) ([]types.Question, error) {
	resp, err := c.postJSON(ctx, path, req, MaxRequestBody)
	if err != nil {
		return nil, err
	}
	var list questionList
	if err := c.decode(path, embedded.Questions, resp, &list); err != nil {
		return nil, err
	}
	return list.Questions, nil
}

// codingChallenge is the generate_challenge response. The challenge text
// arrives under one of description, question or challenge.
type codingChallenge struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Question    string   `json:"question"`
	Challenge   string   `json:"challenge"`
	Language    string   `json:"language"`
	Constraints []string `json:"constraints"`
	Examples    []string `json:"examples"`
	StarterCode string   `json:"starter_code"`
}

func (cc codingChallenge) question() types.Question {
	text := cc.Description
	if text == "" {
		text = cc.Question
	}
	if text == "" {
		text = cc.Challenge
	}
	return types.Question{
		Title:       cc.Title,
		Description: text,
		Language:    cc.Language,
		Constraints: cc.Constraints,
		Examples:    cc.Examples,
		StarterCode: cc.StarterCode,
	}
}

// GenerateCoding generates a coding challenge.
func (c *Client) GenerateCoding(ctx context.Context, req types.CodingRequest) (types.Question, error) {
	req.Skills = SanitizeSkills(req.Skills)
	req.JobRole = SanitizeRole(req.JobRole)
	if r := []rune(req.JobDescription); len(r) > MaxJobDescriptionLen {
		req.JobDescription = string(r[:MaxJobDescriptionLen])
	}
	if err := req.Validate(); err != nil {
		return types.Question{}, fmt.Errorf("invalid coding request: %w", err)
	}
	path := sectionPaths[types.SectionCoding].generate
	resp, err := c.postJSON(ctx, path, req, MaxRequestBody)
	if err != nil {
		return types.Question{}, err
	}
	var challenge codingChallenge
	if err := c.decode(path, embedded.CodingChallenge, resp, &challenge); err != nil {
		return types.Question{}, err
	}
	return challenge.question(), nil
}

// Evaluate submits answers for the section and returns the raw evaluation.
func (c *Client) Evaluate(ctx context.Context, kind types.SectionKind, req types.EvaluationRequest) (*types.Evaluation, error) {
	paths, ok := sectionPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown section kind: %q", kind)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s evaluation request: %w", kind, err)
	}
	resp, err := c.postJSON(ctx, paths.evaluate, req, 0)
	if err != nil {
		return nil, err
	}
	var ev types.Evaluation
	if err := c.decode(paths.evaluate, embedded.Evaluation, resp, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
