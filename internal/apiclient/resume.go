package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/jonathan/assessment-wizard/internal/types"
	embedded "github.com/jonathan/assessment-wizard/schemas"
)

// UploadResume posts a resume file as multipart field "file".
func (c *Client) UploadResume(ctx context.Context, fileName, contentType string, r io.Reader) (*types.ResumeUpload, error) {
	body, formType, err := multipartFile("file", fileName, contentType, r)
	if err != nil {
		return nil, err
	}
	const path = "/resumes"
	resp, err := c.do(ctx, request{method: http.MethodPost, path: path, body: body, contentType: formType})
	if err != nil {
		return nil, err
	}
	var upload types.ResumeUpload
	if err := c.decode(path, embedded.ResumeUpload, resp, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// ResumeAnalysis fetches the analysis record for an uploaded resume.
func (c *Client) ResumeAnalysis(ctx context.Context, resumeID string) (*types.ResumeAnalysis, error) {
	if resumeID == "" {
		return nil, fmt.Errorf("resume ID is required")
	}
	path := "/resumes/" + url.PathEscape(resumeID) + "/analysis"
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var analysis types.ResumeAnalysis
	if err := c.decode(path, embedded.ResumeAnalysis, resp, &analysis); err != nil {
		return nil, err
	}
	if analysis.ResumeID == "" {
		analysis.ResumeID = resumeID
	}
	return &analysis, nil
}

// Jobs lists job openings.
func (c *Client) Jobs(ctx context.Context) ([]types.Job, error) {
	const path = "/jobs"
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var jobs []types.Job
	if err := c.decode(path, embedded.Jobs, resp, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// multipartFile encodes a single-file multipart form.
func multipartFile(field, fileName, contentType string, r io.Reader) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", fileName, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
