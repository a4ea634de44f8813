package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/assessment-wizard/internal/llm"
	"github.com/jonathan/assessment-wizard/internal/media"
)

// AudioAPI is the remote transcription endpoint.
type AudioAPI interface {
	TranscribeAudio(ctx context.Context, fileName, contentType string, r io.Reader) (string, error)
}

// ServerProvider posts audio to the assessment API.
type ServerProvider struct {
	API AudioAPI
}

// Name implements Provider.
func (ServerProvider) Name() string { return "server" }

// Probe implements Provider.
func (p ServerProvider) Probe(context.Context) error {
	if p.API == nil {
		return errors.New("no API client configured")
	}
	return nil
}

// Transcribe implements Provider.
func (p ServerProvider) Transcribe(ctx context.Context, audio media.Audio) (Result, error) {
	name := audio.FileName
	if name == "" {
		name = "recording.webm"
	}
	text, err := p.API.TranscribeAudio(ctx, name, audio.ContentType, bytes.NewReader(audio.Data))
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

// GeminiProvider sends audio to a Gemini model.
type GeminiProvider struct {
	Client llm.Client
}

// Name implements Provider.
func (GeminiProvider) Name() string { return "gemini" }

// Probe implements Provider.
func (p GeminiProvider) Probe(context.Context) error {
	if p.Client == nil {
		return errors.New("GEMINI_API_KEY not set")
	}
	return nil
}

// Transcribe implements Provider.
func (p GeminiProvider) Transcribe(ctx context.Context, audio media.Audio) (Result, error) {
	text, err := p.Client.Transcribe(ctx, audio.Data, audio.ContentType)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}

// ManualProvider keeps the recording on disk and asks for typed input.
type ManualProvider struct {
	Dir string
	now func() time.Time
}

// Name implements Provider.
func (ManualProvider) Name() string { return "manual" }

// Probe implements Provider.
func (p ManualProvider) Probe(context.Context) error {
	if p.Dir == "" {
		return errors.New("no recordings directory configured")
	}
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return nil
}

// Transcribe saves the audio and returns an error wrapping ErrManualInput.
func (p ManualProvider) Transcribe(_ context.Context, audio media.Audio) (Result, error) {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	path := filepath.Join(p.Dir, fmt.Sprintf("answer-%d%s", now().UnixNano(), extension(audio.ContentType)))
	if err := os.WriteFile(path, audio.Data, 0o600); err != nil {
		return Result{}, &Error{Provider: p.Name(), Err: fmt.Errorf("failed to save recording: %w", err)}
	}
	return Result{}, &Error{Provider: p.Name(), Err: fmt.Errorf("%w: recording saved to %s", ErrManualInput, path)}
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".webm"
	}
	switch mediaType {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	}
	return ".bin"
}
