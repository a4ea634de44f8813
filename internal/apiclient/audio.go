package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	embedded "github.com/jonathan/assessment-wizard/schemas"
)

// ErrEmptyTranscript is returned when the service transcribes audio to nothing.
var ErrEmptyTranscript = errors.New("empty transcript")

type transcriptionWire struct {
	Transcript    string `json:"transcript"`
	Transcription string `json:"transcription"`
}

// TranscribeAudio uploads recorded audio as multipart field "file". The
// service answers with {"transcript"}, {"transcription"}, a JSON string or
// plain text.
func (c *Client) TranscribeAudio(ctx context.Context, fileName, contentType string, r io.Reader) (string, error) {
	body, formType, err := multipartFile("file", fileName, contentType, r)
	if err != nil {
		return "", err
	}
	const path = "/audio/transcribe"
	resp, err := c.do(ctx, request{method: http.MethodPost, path: path, body: body, contentType: formType})
	if err != nil {
		return "", err
	}
	text, err := c.transcript(path, resp)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (c *Client) transcript(path string, resp *response) (string, error) {
	trimmed := bytes.TrimSpace(resp.body)
	if len(trimmed) == 0 {
		return "", nil
	}
	switch {
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", &DecodeError{Path: path, Cause: err}
		}
		return strings.TrimSpace(s), nil
	case trimmed[0] == '{':
		var wire transcriptionWire
		if err := c.decode(path, embedded.Transcription, resp, &wire); err != nil {
			return "", err
		}
		if wire.Transcript != "" {
			return strings.TrimSpace(wire.Transcript), nil
		}
		return strings.TrimSpace(wire.Transcription), nil
	case resp.isJSON():
		return "", &DecodeError{Path: path, Schema: embedded.Transcription, Cause: errors.New("unexpected JSON value")}
	}
	return string(trimmed), nil
}
