package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jonathan/assessment-wizard/internal/types"
)

// Document is a generated report.
type Document struct {
	ContentType string
	Data        []byte
}

// DownloadReport builds the assessment report remotely.
func (c *Client) DownloadReport(ctx context.Context, req types.ReportRequest) (*Document, error) {
	const path = "/download_report"
	resp, err := c.postJSON(ctx, path, req, 0)
	if err != nil {
		return nil, err
	}
	return document(path, "report", resp)
}

// InterviewPDF builds the interview PDF remotely.
func (c *Client) InterviewPDF(ctx context.Context, req types.InterviewReportRequest) (*Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	const path = "/generate_interview_pdf"
	resp, err := c.postJSON(ctx, path, req, 0)
	if err != nil {
		return nil, err
	}
	return document(path, "pdf", resp)
}

// document returns binary bodies as-is. JSON bodies carry the document under
// field, base64 encoded when it is a PDF and as text otherwise.
func document(path, field string, resp *response) (*Document, error) {
	if !resp.isJSON() {
		if len(resp.body) == 0 {
			return nil, &DecodeError{Path: path, Cause: errors.New("empty document")}
		}
		ct := resp.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return &Document{ContentType: ct, Data: resp.body}, nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, &DecodeError{Path: path, Cause: err}
	}
	var content string
	if err := json.Unmarshal(payload[field], &content); err != nil || content == "" {
		return nil, &DecodeError{Path: path, Cause: errors.New("missing " + field + " field")}
	}
	content = strings.TrimPrefix(content, "data:application/pdf;base64,")
	if data, err := base64.StdEncoding.DecodeString(content); err == nil && strings.HasPrefix(string(data), "%PDF") {
		return &Document{ContentType: "application/pdf", Data: data}, nil
	}
	return &Document{ContentType: "text/plain; charset=utf-8", Data: []byte(content)}, nil
}
