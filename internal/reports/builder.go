package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/assessment-wizard/internal/apiclient"
	"github.com/jonathan/assessment-wizard/internal/llm"
	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/prompts"
	"github.com/jonathan/assessment-wizard/internal/types"
)

// Report sources.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// Document is a finished report.
type Document struct {
	ContentType string   `json:"content_type"`
	Data        []byte   `json:"-"`
	Source      string   `json:"source"`
	Locations   []string `json:"locations,omitempty"`
}

// Extension returns the file extension matching the content type.
func (d Document) Extension() string {
	switch {
	case strings.HasPrefix(d.ContentType, "application/pdf"):
		return ".pdf"
	case strings.HasPrefix(d.ContentType, "text/html"):
		return ".html"
	case strings.HasPrefix(d.ContentType, "text/plain"):
		return ".txt"
	}
	return ".bin"
}

// RemoteAPI is the report part of the assessment API.
type RemoteAPI interface {
	DownloadReport(ctx context.Context, req types.ReportRequest) (*apiclient.Document, error)
	InterviewPDF(ctx context.Context, req types.InterviewReportRequest) (*apiclient.Document, error)
}

// Builder produces reports. Remote is tried first unless Local is requested;
// local rendering is the fallback.
type Builder struct {
	Remote     RemoteAPI
	Printer    Printer
	Summarizer llm.Client
	Archiver   Archiver
	Logger     *zap.Logger
}

// Options select how one report is built.
type Options struct {
	// Local skips the remote API.
	Local bool
	// HTML keeps the local report as HTML instead of printing it.
	HTML bool
}

// Build produces a report for in and archives it when an archiver is set.
func (b *Builder) Build(ctx context.Context, in Input, opts Options) (*Document, error) {
	logger := logging.OrNop(b.Logger)
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now().UTC()
	}

	var doc *Document
	if !opts.Local && b.Remote != nil {
		remote, err := b.remote(ctx, in)
		if err == nil {
			doc = remote
		} else {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("remote report failed, rendering locally", zap.Error(err))
		}
	}
	if doc == nil {
		local, err := b.local(ctx, in, opts.HTML, logger)
		if err != nil {
			return nil, err
		}
		doc = local
	}

	if b.Archiver != nil {
		if err := b.archive(ctx, in, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (b *Builder) remote(ctx context.Context, in Input) (*Document, error) {
	var (
		d   *apiclient.Document
		err error
	)
	if in.Type == TypeAIInterview {
		d, err = b.Remote.InterviewPDF(ctx, in.interviewRequest())
	} else {
		d, err = b.Remote.DownloadReport(ctx, in.reportRequest())
	}
	if err != nil {
		return nil, err
	}
	return &Document{ContentType: d.ContentType, Data: d.Data, Source: SourceRemote}, nil
}

func (b *Builder) local(ctx context.Context, in Input, keepHTML bool, logger *zap.Logger) (*Document, error) {
	summary := ""
	if b.Summarizer != nil {
		s, err := b.Summarizer.Summarize(ctx, SummaryPrompt(in))
		if err != nil {
			logger.Warn("report summary failed", zap.Error(err))
		} else {
			summary = s
		}
	}

	html, err := RenderHTML(NewView(in, summary))
	if err != nil {
		return nil, err
	}
	if keepHTML {
		return &Document{ContentType: "text/html; charset=utf-8", Data: html, Source: SourceLocal}, nil
	}
	if b.Printer == nil {
		return nil, ErrNoPrinter
	}
	pdf, err := b.Printer.PrintPDF(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Document{ContentType: "application/pdf", Data: pdf, Source: SourceLocal}, nil
}

// archive stores the document and, for local PDFs, the HTML source alongside it.
func (b *Builder) archive(ctx context.Context, in Input, doc *Document) error {
	base := fmt.Sprintf("%s/%s-%s", keyPart(in.SessionID), keyPart(in.Type), in.GeneratedAt.UTC().Format("20060102T150405Z"))
	docs := map[string]Document{base + doc.Extension(): *doc}
	if doc.Source == SourceLocal && doc.Extension() == ".pdf" {
		if html, err := RenderHTML(NewView(in, "")); err == nil {
			docs[base+".html"] = Document{ContentType: "text/html; charset=utf-8", Data: html}
		}
	}

	locations := make([]string, 0, len(docs))
	results := make(chan string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for key, d := range docs {
		g.Go(func() error {
			loc, err := b.Archiver.Archive(gctx, key, d)
			if err != nil {
				return err
			}
			results <- loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	close(results)
	for loc := range results {
		locations = append(locations, loc)
	}
	doc.Locations = locations
	return nil
}

func keyPart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// SummaryPrompt asks the model for a short narrative of the results.
func SummaryPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assessment type: %s\n", in.Type)
	if in.Role != "" {
		fmt.Fprintf(&sb, "Target role: %s\n", in.Role)
	}
	if score, ok := in.Score(); ok {
		fmt.Fprintf(&sb, "Overall score: %.1f/100\n", score)
	}
	for _, r := range in.Results {
		fmt.Fprintf(&sb, "- %s: %.1f/100", r.Kind.Title(), r.Score)
		if r.Feedback != "" {
			fmt.Fprintf(&sb, " (%s)", r.Feedback)
		}
		sb.WriteString("\n")
	}
	if in.Interview != nil && in.Interview.Analysis != nil && in.Interview.Analysis.Summary != "" {
		fmt.Fprintf(&sb, "Interviewer notes: %s\n", in.Interview.Analysis.Summary)
	}
	if in.Gaps != nil && len(in.Gaps.AreasForImprovement) > 0 {
		fmt.Fprintf(&sb, "Areas for improvement: %s\n", strings.Join(types.Strings(in.Gaps.AreasForImprovement), "; "))
	}
	return prompts.Format(prompts.MustGet("reports.json", "summary"), map[string]string{"Details": sb.String()})
}
