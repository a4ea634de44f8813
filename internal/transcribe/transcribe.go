// Package transcribe turns recorded interview answers into text.
//
// Providers are probed once when a Chain is built. Transcribe then tries the
// available providers in order until one produces text. A ManualProvider at
// the end of the chain stores the audio and asks the caller for typed input.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/media"
)

var (
	// ErrNoProvider is returned when no provider passed its probe.
	ErrNoProvider = errors.New("no transcription provider available")
	// ErrManualInput means the answer must be typed in by the candidate.
	ErrManualInput = errors.New("manual input required")
)

// Result is a successful transcription.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// Error is a failure from a single provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s transcription failed: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Provider is one transcription strategy.
type Provider interface {
	Name() string
	// Probe reports whether the provider can be used at all.
	Probe(ctx context.Context) error
	Transcribe(ctx context.Context, audio media.Audio) (Result, error)
}

// Chain tries providers in order.
type Chain struct {
	providers []Provider
	skipped   map[string]error
	logger    *zap.Logger
}

// NewChain probes each provider once and keeps those that pass, in order.
// It fails with ErrNoProvider when none pass.
func NewChain(ctx context.Context, logger *zap.Logger, providers ...Provider) (*Chain, error) {
	c := &Chain{skipped: make(map[string]error), logger: logging.OrNop(logger)}
	for _, p := range providers {
		if err := p.Probe(ctx); err != nil {
			c.logger.Info("transcription provider unavailable",
				zap.String("provider", p.Name()),
				zap.Error(err))
			c.skipped[p.Name()] = err
			continue
		}
		c.providers = append(c.providers, p)
	}
	if len(c.providers) == 0 {
		return nil, ErrNoProvider
	}
	return c, nil
}

// Providers returns the names of the available providers in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Skipped returns the probe error for each provider left out of the chain.
func (c *Chain) Skipped() map[string]error {
	return c.skipped
}

// Transcribe returns the first successful result. A provider that asks for
// manual input ends the chain immediately.
func (c *Chain) Transcribe(ctx context.Context, audio media.Audio) (Result, error) {
	if len(audio.Data) == 0 {
		return Result{}, media.ErrNoAudio
	}

	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := p.Transcribe(ctx, audio)
		if err == nil {
			res.Provider = p.Name()
			return res, nil
		}

		var perr *Error
		if !errors.As(err, &perr) {
			err = &Error{Provider: p.Name(), Err: err}
		}
		if errors.Is(err, ErrManualInput) {
			return Result{}, err
		}
		c.logger.Warn("transcription provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.Error(err))
		errs = append(errs, err)
	}
	return Result{}, fmt.Errorf("all transcription providers failed: %w", errors.Join(errs...))
}
