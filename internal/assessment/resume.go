package assessment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// MaxResumeSize is the largest accepted resume in bytes.
const MaxResumeSize = 10 << 20

var resumeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ValidateResume checks the file type by extension and content type.
func ValidateResume(fileName, contentType string, size int64) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	want, ok := resumeTypes[ext]
	if !ok {
		return fmt.Errorf("%w: unsupported file type %q", ErrInvalidFile, ext)
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct != "" && ct != want && ct != "application/octet-stream" {
		return fmt.Errorf("%w: content type %s does not match %s", ErrInvalidFile, ct, ext)
	}
	if size == 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if size > MaxResumeSize {
		return fmt.Errorf("%w: file is larger than 10 MB", ErrInvalidFile)
	}
	return nil
}

// UploadResume validates and uploads the resume, then moves to analysis.
func (c *Coordinator) UploadResume(ctx context.Context, fileName, contentType string, r io.Reader) (*wizard.UploadPayload, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResumeSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read resume: %w", err)
	}
	if err := ValidateResume(fileName, contentType, int64(len(data))); err != nil {
		return nil, c.fail(wizard.StepUpload, err)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = resumeTypes[strings.ToLower(filepath.Ext(fileName))]
	}

	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := c.require(wizard.OpUploadResume); err != nil {
		return nil, err
	}

	upload, err := c.api.UploadResume(ctx, filepath.Base(fileName), contentType, bytes.NewReader(data))
	if err != nil {
		return nil, c.fail(wizard.StepUpload, err)
	}

	payload := wizard.UploadPayload{
		FileName:    filepath.Base(fileName),
		ContentType: contentType,
		Size:        int64(len(data)),
		ResumeID:    upload.ID,
		UploadedAt:  c.now(),
	}
	if err := c.transition(ctx, func(w *wizard.Wizard) error { return w.CompleteUpload(payload) }); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Coordinator) require(op wizard.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Require(op)
}

// AwaitAnalysis polls the resume analysis until it is COMPLETE or FAILED. A
// completed analysis moves to jobs; a failed one stays on analysis and
// returns a *wizard.AnalysisFailedError.
func (c *Coordinator) AwaitAnalysis(ctx context.Context) (*wizard.AnalysisPayload, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	err = c.wiz.Require(wizard.OpAwaitAnalysis)
	upload, _ := c.wiz.Upload()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if upload.ResumeID == "" {
		return nil, c.fail(wizard.StepAnalysis, wizard.ErrMissingResumeID)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		analysis, err := c.api.ResumeAnalysis(ctx, upload.ResumeID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, c.fail(wizard.StepAnalysis, err)
		}
		c.logger.Debug("resume analysis polled", zap.String("status", string(analysis.Status)))
		if analysis.Status.Terminal() {
			return c.completeAnalysis(ctx, upload.ResumeID, analysis)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) completeAnalysis(ctx context.Context, resumeID string, a *types.ResumeAnalysis) (*wizard.AnalysisPayload, error) {
	payload := wizard.AnalysisPayload{
		ResumeID:      resumeID,
		Status:        a.Status,
		Skills:        a.Skills,
		ExtractedText: a.ExtractedText,
		AIModel:       a.AIModel,
		ErrorMessage:  a.ErrorMessage,
		Suggestions:   a.Suggestions,
	}
	if err := c.transition(ctx, func(w *wizard.Wizard) error { return w.CompleteAnalysis(payload) }); err != nil {
		return nil, err
	}
	c.persist(ctx, store.KeyResumeAnalysis, payload)
	c.persist(ctx, store.KeyJobSuggestions, payload.Suggestions)
	return &payload, nil
}

// SkipAnalysis moves to jobs without waiting for the analysis.
func (c *Coordinator) SkipAnalysis(ctx context.Context) error {
	return c.transition(ctx, func(w *wizard.Wizard) error { return w.SkipAnalysis() })
}

// Jobs lists open roles for the jobs step.
func (c *Coordinator) Jobs(ctx context.Context) ([]types.Job, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return c.api.Jobs(ctx)
}

// SelectPath commits the assessment path. An empty role falls back to the
// role suggested by the analysis.
func (c *Coordinator) SelectPath(ctx context.Context, path wizard.Path, jobs wizard.JobsPayload) error {
	c.mu.Lock()
	if a, ok := c.wiz.Analysis(); ok {
		if jobs.SuggestedRole == "" {
			jobs.SuggestedRole = a.Suggestions.PrimaryRole
		}
		if len(jobs.AdditionalRoles) == 0 {
			jobs.AdditionalRoles = a.Suggestions.AdditionalRoles
		}
		if jobs.MatchPercentage == 0 {
			jobs.MatchPercentage = a.Suggestions.MatchPercentage
		}
	}
	c.mu.Unlock()
	if jobs.SuggestedRole == "" {
		jobs.SuggestedRole = DefaultRole
	}
	return c.transition(ctx, func(w *wizard.Wizard) error { return w.SelectPath(path, jobs) })
}

// profile returns the role and skills used in generation requests.
func (c *Coordinator) profile() (role string, skills []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	role = DefaultRole
	if j, ok := c.wiz.Jobs(); ok && j.SuggestedRole != "" {
		role = j.SuggestedRole
	}
	if a, ok := c.wiz.Analysis(); ok {
		skills = append(skills, a.Skills...)
	}
	return role, skills
}
