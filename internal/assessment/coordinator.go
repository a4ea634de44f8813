// Package assessment drives one candidate through the career assessment. A
// Coordinator binds the step machine to the remote API, the interview
// controller, the state store and the event publisher.
package assessment

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/events"
	"github.com/jonathan/assessment-wizard/internal/interview"
	"github.com/jonathan/assessment-wizard/internal/logging"
	"github.com/jonathan/assessment-wizard/internal/media"
	"github.com/jonathan/assessment-wizard/internal/reports"
	"github.com/jonathan/assessment-wizard/internal/store"
	"github.com/jonathan/assessment-wizard/internal/types"
	"github.com/jonathan/assessment-wizard/internal/wizard"
)

// DefaultPollInterval is the pause between resume analysis polls.
const DefaultPollInterval = 2 * time.Second

// API is the assessment API surface the coordinator uses.
type API interface {
	UploadResume(ctx context.Context, fileName, contentType string, r io.Reader) (*types.ResumeUpload, error)
	ResumeAnalysis(ctx context.Context, resumeID string) (*types.ResumeAnalysis, error)
	Jobs(ctx context.Context) ([]types.Job, error)
	GenerateAptitude(ctx context.Context, req types.AptitudeRequest) ([]types.Question, error)
	GenerateScenario(ctx context.Context, req types.ScenarioRequest) ([]types.Question, error)
	GenerateCoding(ctx context.Context, req types.CodingRequest) (types.Question, error)
	Evaluate(ctx context.Context, kind types.SectionKind, req types.EvaluationRequest) (*types.Evaluation, error)
	interview.API
}

// Options configures a Coordinator.
type Options struct {
	// SessionID identifies the assessment in events. A random id is used when empty.
	SessionID string
	API       API
	// Store persists payloads and the wizard snapshot. Optional.
	Store *store.Store
	// Events receives step changes. Optional.
	Events events.Publisher
	// Devices opens a fresh capture device for each interview attempt.
	Devices func() media.Device
	// Transcriber turns recorded answers into text. Optional.
	Transcriber interview.Transcriber
	// Reports builds reports. Optional.
	Reports       *reports.Builder
	PollInterval  time.Duration
	FrameInterval time.Duration
	Defaults      Defaults
	Logger        *zap.Logger
	Now           func() time.Time
}

// Coordinator runs one assessment. It is safe for concurrent use; at most one
// remote call runs at a time.
type Coordinator struct {
	id            string
	api           API
	store         *store.Store
	events        events.Publisher
	devices       func() media.Device
	transcriber   interview.Transcriber
	reports       *reports.Builder
	pollInterval  time.Duration
	frameInterval time.Duration
	defaults      Defaults
	logger        *zap.Logger
	now           func() time.Time

	busy atomic.Bool

	mu         sync.Mutex
	wiz        *wizard.Wizard
	startedAt  time.Time
	iv         *interview.Controller
	device     media.Device
	completion *interview.Completion
	insights   *Insights
}

// New creates a coordinator on the welcome step.
func New(opts Options) (*Coordinator, error) {
	if opts.API == nil {
		return nil, errors.New("assessment API is required")
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.Devices == nil {
		opts.Devices = func() media.Device { return media.DeniedDevice{} }
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		id:            opts.SessionID,
		api:           opts.API,
		store:         opts.Store,
		events:        opts.Events,
		devices:       opts.Devices,
		transcriber:   opts.Transcriber,
		reports:       opts.Reports,
		pollInterval:  opts.PollInterval,
		frameInterval: opts.FrameInterval,
		defaults:      opts.Defaults.withFallbacks(),
		logger:        logging.OrNop(opts.Logger).With(zap.String("session_id", opts.SessionID)),
		now:           opts.Now,
		wiz:           wizard.New(),
	}, nil
}

// ID returns the session id.
func (c *Coordinator) ID() string {
	return c.id
}

// acquire claims the single in-flight slot.
func (c *Coordinator) acquire() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { c.busy.Store(false) }, nil
}

// Busy reports whether a remote call is in flight.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Idle reports whether the coordinator can be closed and later rebuilt from
// the store: no remote call is in flight and no live interview is open.
func (c *Coordinator) Idle() bool {
	if c.busy.Load() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iv == nil
}

// Current returns the active step.
func (c *Coordinator) Current() wizard.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Current()
}

// Path returns the committed path.
func (c *Coordinator) Path() wizard.Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Path()
}

// Snapshot returns the serializable wizard state.
func (c *Coordinator) Snapshot() wizard.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiz.Snapshot()
}

// Restore replaces the wizard state. Any running interview is closed.
func (c *Coordinator) Restore(s wizard.State) error {
	w, err := wizard.Restore(s)
	if err != nil {
		return err
	}
	c.mu.Lock()
	iv := c.iv
	c.iv, c.device, c.completion, c.insights = nil, nil, nil, nil
	c.wiz = w
	if up, ok := w.Upload(); ok && c.startedAt.IsZero() {
		c.startedAt = up.UploadedAt
	}
	c.mu.Unlock()
	if iv != nil {
		iv.Close()
	}
	return nil
}

// Load restores the wizard from the store. It reports false when nothing was saved.
func (c *Coordinator) Load(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	var s wizard.State
	if _, err := c.store.Load(ctx, store.KeyWizardState, &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := c.Restore(s); err != nil {
		return false, err
	}
	return true, nil
}

// transition applies fn to the wizard under the lock. When the step changes
// it persists the snapshot and publishes a step.changed event.
func (c *Coordinator) transition(ctx context.Context, fn func(w *wizard.Wizard) error) error {
	c.mu.Lock()
	from := c.wiz.Current()
	err := fn(c.wiz)
	to := c.wiz.Current()
	path := c.wiz.Path()
	state := c.wiz.Snapshot()
	c.mu.Unlock()

	if err != nil {
		return err
	}
	c.persist(ctx, store.KeyWizardState, state)
	if from != to {
		e := events.New(c.id, events.TypeStepChanged)
		e.From, e.To, e.Path = string(from), string(to), string(path)
		c.publish(ctx, e)
		c.logger.Info("step changed", zap.String("from", string(from)), zap.String("to", string(to)))
	}
	return nil
}

// fail records err on step so it is shown until the step changes.
func (c *Coordinator) fail(step wizard.Step, err error) error {
	c.mu.Lock()
	c.wiz.Fail(step, err)
	c.mu.Unlock()
	return err
}

// persist writes v under key. Store failures are logged, not returned; the
// in-memory state stays authoritative.
func (c *Coordinator) persist(ctx context.Context, key string, v any) {
	if c.store == nil {
		return
	}
	if _, err := c.store.Save(ctx, key, v); err != nil {
		c.logger.Warn("failed to persist state", zap.String("key", key), zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, e events.Event) {
	if err := c.events.Publish(ctx, e); err != nil {
		c.logger.Warn("failed to publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

// Start moves from welcome to upload.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.transition(ctx, func(w *wizard.Wizard) error {
		if err := w.Start(); err != nil {
			return err
		}
		c.startedAt = c.now()
		return nil
	})
}

// Back moves to the previous step. Leaving the interview closes it.
func (c *Coordinator) Back(ctx context.Context) (wizard.Step, error) {
	var prev wizard.Step
	err := c.transition(ctx, func(w *wizard.Wizard) error {
		p, err := w.Back()
		prev = p
		return err
	})
	if err != nil {
		return "", err
	}
	c.closeInterview()
	if prev == wizard.StepJobs {
		c.mu.Lock()
		c.insights, c.completion = nil, nil
		c.mu.Unlock()
	}
	return prev, nil
}

// Close releases the interview devices.
func (c *Coordinator) Close() {
	c.closeInterview()
}

func (c *Coordinator) closeInterview() {
	c.mu.Lock()
	iv := c.iv
	c.iv, c.device = nil, nil
	c.mu.Unlock()
	if iv != nil {
		iv.Close()
	}
}
