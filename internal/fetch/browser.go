package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
)

// MinPostingLength is the shortest extracted posting text accepted from a plain
// HTTP fetch. Shorter pages are usually client-rendered.
const MinPostingLength = 300

// DefaultRenderTimeout bounds one headless render.
const DefaultRenderTimeout = 30 * time.Second

// Renderer returns the rendered HTML of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ChromeRenderer renders pages in headless Chrome. Chrome or Chromium must be installed.
type ChromeRenderer struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Render navigates to url, waits for the body and returns the page HTML.
func (r ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	logger := logging.OrNop(r.Logger)
	logger.Debug("rendering page", zap.String("url", url))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}

// Posting fetches a job posting over HTTP and, when the extracted text is
// shorter than MinPostingLength and a renderer is given, renders the page and
// extracts again. The longer of the two texts wins.
func Posting(ctx context.Context, urlStr string, opts *Options, renderer Renderer) (string, error) {
	result, err := JobDescription(ctx, urlStr, opts)
	if err != nil && (result == nil || renderer == nil) {
		return "", err
	}
	text := ""
	if result != nil && err == nil {
		text = result.Text
	}
	if renderer == nil || len(strings.TrimSpace(text)) >= MinPostingLength {
		return text, nil
	}

	html, rerr := renderer.Render(ctx, urlStr)
	if rerr != nil {
		if text != "" {
			return text, nil
		}
		return "", &Error{URL: urlStr, Message: "render failed", Cause: rerr}
	}
	rendered, xerr := ExtractMainText(html, JobPostingSelectors())
	if xerr != nil || len(rendered) <= len(text) {
		if text == "" {
			return "", &Error{URL: urlStr, Message: "no posting text found", Cause: xerr}
		}
		return text, nil
	}
	return rendered, nil
}
