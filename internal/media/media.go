// Package media models camera and microphone capture for the AI interview.
// A Device is opened once per interview; the Stream it returns supplies
// frames and recorded answers until it is stopped.
package media

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned when the user refuses camera or microphone access.
	ErrPermissionDenied = errors.New("camera/microphone access denied")
	// ErrNotFound is returned when no capture device is available.
	ErrNotFound = errors.New("no camera or microphone found")
	// ErrUnsupported is returned when capture is not supported in this environment.
	ErrUnsupported = errors.New("camera/microphone not supported")
	// ErrStopped is returned by a stream after Stop.
	ErrStopped = errors.New("media stream stopped")
	// ErrNoFrame is returned when a stream has no frame available yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrNoAudio is returned when nothing was recorded.
	ErrNoAudio = errors.New("no audio recorded")
)

// Audio is a recorded answer.
type Audio struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera and microphone capture.
type Stream interface {
	// Frame returns the current video frame as JPEG.
	Frame(ctx context.Context) ([]byte, error)
	// Record returns the next recorded answer.
	Record(ctx context.Context) (Audio, error)
	// Stop releases the devices. It is safe to call more than once.
	Stop()
}

// DeniedDevice always fails with ErrPermissionDenied.
type DeniedDevice struct{}

// Open implements Device.
func (DeniedDevice) Open(context.Context) (Stream, error) {
	return nil, ErrPermissionDenied
}

// UserMessage describes a capture error for the candidate.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera/microphone access denied. Please allow permissions and try again."
	case errors.Is(err, ErrNotFound):
		return "No camera or microphone found. Please connect your devices and try again."
	case errors.Is(err, ErrUnsupported):
		return "Camera/microphone not supported here. Please try a different device."
	}
	return "Media access error: " + err.Error()
}
