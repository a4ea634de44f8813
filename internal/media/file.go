package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileDevice replays JPEG frames from a directory and audio answers from
// files. It backs the CLI and tests.
type FileDevice struct {
	FramesDir  string
	AudioFiles []string
}

// Open implements Device.
func (d FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var frames []string
	if d.FramesDir != "" {
		info, err := os.Stat(d.FramesDir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: frames directory %s", ErrNotFound, d.FramesDir)
		}
		for _, pattern := range []string{"*.jpg", "*.jpeg"} {
			matches, err := filepath.Glob(filepath.Join(d.FramesDir, pattern))
			if err != nil {
				return nil, err
			}
			frames = append(frames, matches...)
		}
		sort.Strings(frames)
	}
	return &fileStream{frames: frames, audio: append([]string(nil), d.AudioFiles...)}, nil
}

type fileStream struct {
	mu      sync.Mutex
	frames  []string
	next    int
	audio   []string
	stopped bool
}

func (s *fileStream) Frame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	path := s.frames[s.next%len(s.frames)]
	s.next++
	return os.ReadFile(path)
}

func (s *fileStream) Record(ctx context.Context) (Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Audio{}, ErrStopped
	}
	if len(s.audio) == 0 {
		return Audio{}, ErrNoAudio
	}
	path := s.audio[0]
	s.audio = s.audio[1:]
	return ReadAudio(path)
}

func (s *fileStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// ReadAudio loads an audio file, deriving its content type from the extension.
func ReadAudio(path string) (Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Audio{}, fmt.Errorf("failed to read audio %s: %w", path, err)
	}
	if len(data) == 0 {
		return Audio{}, ErrNoAudio
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		ct = "audio/webm"
	}
	return Audio{FileName: filepath.Base(path), ContentType: ct, Data: data}, nil
}
