package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/jonathan/assessment-wizard/internal/prompts"
)

// ErrNoText is returned when the model produced no text.
var ErrNoText = errors.New("no text in model response")

// Client is the model surface the rest of the module uses.
type Client interface {
	// Transcribe returns the words spoken in audio.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	// Summarize answers a free-text prompt.
	Summarize(ctx context.Context, prompt string) (string, error)
	// Close releases any resources held by the client
	Close() error
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

func (c *GeminiClient) model(task Task) *genai.GenerativeModel {
	model := c.client.GenerativeModel(c.config.ModelFor(task))
	model.SetTemperature(c.config.Temperature)
	return model
}

// Transcribe sends the audio inline with a transcription instruction.
func (c *GeminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio is empty")
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	// Gemini rejects codec parameters such as "audio/webm;codecs=opus".
	mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])

	resp, err := c.model(TaskTranscribe).GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: audio},
		genai.Text(prompts.MustGet("transcription.json", "transcribe")),
	)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return textFromResponse(resp)
}

// Summarize generates free text for prompt.
func (c *GeminiClient) Summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := c.model(TaskSummarize).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textFromResponse(resp)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// textFromResponse joins the text parts of the first candidate.
func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrNoText)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty candidate", ErrNoText)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}
