package media

import (
	"context"
	"sync"
)

// PushDevice is fed by a remote client: the server pushes the frames and
// recordings it receives, and the interview reads them like a local capture.
type PushDevice struct {
	mu      sync.Mutex
	frame   []byte
	audio   []Audio
	stopped bool
	opened  bool
}

// NewPushDevice creates an empty push device.
func NewPushDevice() *PushDevice {
	return &PushDevice{}
}

// Open implements Device. A push device can be opened once.
func (d *PushDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.opened {
		return nil, ErrUnsupported
	}
	d.opened = true
	return d, nil
}

// PushFrame replaces the current frame.
func (d *PushDevice) PushFrame(jpeg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.frame = append([]byte(nil), jpeg...)
	return nil
}

// PushAudio queues a recording.
func (d *PushDevice) PushAudio(a Audio) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	d.audio = append(d.audio, a)
	return nil
}

// Frame implements Stream.
func (d *PushDevice) Frame(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, ErrStopped
	}
	if d.frame == nil {
		return nil, ErrNoFrame
	}
	return append([]byte(nil), d.frame...), nil
}

// Record implements Stream.
func (d *PushDevice) Record(context.Context) (Audio, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return Audio{}, ErrStopped
	}
	if len(d.audio) == 0 {
		return Audio{}, ErrNoAudio
	}
	a := d.audio[0]
	d.audio = d.audio[1:]
	return a, nil
}

// Stop implements Stream.
func (d *PushDevice) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.frame = nil
	d.audio = nil
	d.mu.Unlock()
}
