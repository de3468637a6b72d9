// Package session implements the analysis session state machine:
// idle, staged, submitting, result and back to idle on reset.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cropdx/leafscan/internal/diagnosis"
	"github.com/cropdx/leafscan/internal/errors"
	"github.com/cropdx/leafscan/internal/logger"
	"github.com/cropdx/leafscan/internal/staging"
)

const componentName = "session"

// ErrInvalidTransition is matched by errors.Is for operations attempted from
// a state that does not allow them.
var ErrInvalidTransition = errors.NewStd("invalid session transition")

// Analyzer submits one image for remote diagnosis.
type Analyzer interface {
	Analyze(ctx context.Context, name, contentType string, data []byte) (diagnosis.AnalysisResult, error)
}

// TransitionFunc observes state changes. It runs after the controller lock is released.
type TransitionFunc func(from, to State)

// Outcome reports how a Submit call ended.
type Outcome struct {
	Status     SubmitStatus
	Result     *diagnosis.AnalysisResult
	Generation uint64
}

// Snapshot is a point-in-time copy of the session for presentation.
type Snapshot struct {
	State      State
	Image      *staging.StagedImage
	Result     *diagnosis.AnalysisResult
	LastError  string
	Generation uint64
}

// Controller owns the staged image, the single in-flight request and the
// held result. Safe for concurrent use.
type Controller struct {
	mu         sync.Mutex
	state      State
	store      *staging.Store
	analyzer   Analyzer
	generation uint64
	result     *diagnosis.AnalysisResult
	lastErr    error
	observers  []TransitionFunc
	log        logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for the controller.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// New creates a controller in the Idle state.
func New(store *staging.Store, analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		state:    Idle,
		store:    store,
		analyzer: analyzer,
		log:      logger.Global().Module(componentName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnTransition registers an observer for every state change.
func (c *Controller) OnTransition(fn TransitionFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the held diagnosis, if any.
func (c *Controller) Result() (diagnosis.AnalysisResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return diagnosis.AnalysisResult{}, false
	}
	return *c.result, true
}

// LastError returns the error from the most recent failed submission, cleared
// by any later successful transition.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns a copy of the session for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.state, Generation: c.generation}
	if img, ok := c.store.Current(); ok {
		snap.Image = &img
	}
	if c.result != nil {
		r := *c.result
		snap.Result = &r
	}
	if c.lastErr != nil {
		snap.LastError = errors.UserMessage(c.lastErr)
	}
	return snap
}

// AttachImage stages data under name. Valid from Idle or Staged.
func (c *Controller) AttachImage(name string, data []byte) (staging.StagedImage, error) {
	return c.attach(func() (staging.StagedImage, error) {
		return c.store.Stage(name, data)
	})
}

// AttachFile stages the image at path. Valid from Idle or Staged.
func (c *Controller) AttachFile(path string) (staging.StagedImage, error) {
	return c.attach(func() (staging.StagedImage, error) {
		return c.store.StageFile(path)
	})
}

func (c *Controller) attach(stage func() (staging.StagedImage, error)) (staging.StagedImage, error) {
	c.mu.Lock()
	if !allowed(opAttach, c.state) {
		err := c.invalidTransition(opAttach)
		c.mu.Unlock()
		return staging.StagedImage{}, err
	}

	img, err := stage()
	if err != nil {
		notify := func() {}
		if c.state == Staged && !c.store.HasImage() {
			notify = c.setStateLocked(Idle)
		}
		c.mu.Unlock()
		notify()
		return staging.StagedImage{}, err
	}

	c.generation++
	c.lastErr = nil
	notify := c.setStateLocked(Staged)
	c.mu.Unlock()
	notify()

	return img, nil
}

// RemoveImage discards the staged image. Valid from Staged.
func (c *Controller) RemoveImage() error {
	c.mu.Lock()
	if !allowed(opRemove, c.state) {
		err := c.invalidTransition(opRemove)
		c.mu.Unlock()
		return err
	}

	c.store.Clear()
	c.lastErr = nil
	notify := c.setStateLocked(Idle)
	c.mu.Unlock()
	notify()
	return nil
}

// Submit sends the staged image for analysis and waits for the response.
//
// A call while a submission is in flight returns SubmitDuplicate without
// contacting the service. A response that arrives after Reset or a new attach
// is discarded as SubmitStale. On failure the session returns to Staged with
// the image kept and the error is a remote-analysis error.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.state == Submitting {
		gen := c.generation
		c.mu.Unlock()
		c.log.Debug("Submission already in flight", logger.Uint64("generation", gen))
		return Outcome{Status: SubmitDuplicate, Generation: gen}, nil
	}
	if !allowed(opSubmit, c.state) {
		err := c.invalidTransition(opSubmit)
		c.mu.Unlock()
		return Outcome{Status: SubmitRejected}, err
	}

	img, ok := c.store.Current()
	if !ok {
		// Staged without an image means the store was cleared behind our back.
		err := c.invalidTransition(opSubmit)
		c.mu.Unlock()
		return Outcome{Status: SubmitRejected}, err
	}

	gen := c.generation
	c.lastErr = nil
	notify := c.setStateLocked(Submitting)
	c.mu.Unlock()
	notify()

	c.log.Info("Submitting image",
		logger.String("filename", img.Name),
		logger.Int("bytes", img.Size()),
		logger.Uint64("generation", gen))

	result, err := c.analyzer.Analyze(ctx, img.Name, img.ContentType, img.Data)

	c.mu.Lock()
	if c.generation != gen || c.state != Submitting {
		current := c.generation
		c.mu.Unlock()
		c.log.Info("Discarding stale analysis response",
			logger.Uint64("generation", gen),
			logger.Uint64("current_generation", current),
			logger.Bool("failed", err != nil))
		return Outcome{Status: SubmitStale, Generation: gen}, nil
	}

	if err != nil {
		err = asRemoteAnalysisError(err, img.Name)
		c.lastErr = err
		notify = c.setStateLocked(Staged)
		c.mu.Unlock()
		notify()

		c.log.Warn("Analysis failed",
			logger.String("filename", img.Name),
			logger.Error(err))
		return Outcome{Status: SubmitFailed, Generation: gen}, err
	}

	held := result
	c.result = &held
	c.store.Clear()
	notify = c.setStateLocked(Result)
	c.mu.Unlock()
	notify()

	c.log.Info("Analysis applied",
		logger.String("filename", result.Filename),
		logger.Bool("healthy", result.IsHealthy),
		logger.Float64("confidence", result.Confidence))

	out := result
	return Outcome{Status: SubmitApplied, Result: &out, Generation: gen}, nil
}

// Reset discards the held result, or supersedes the in-flight submission,
// and returns to Idle. Valid from Result or Submitting.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if !allowed(opReset, c.state) {
		err := c.invalidTransition(opReset)
		c.mu.Unlock()
		return err
	}

	c.generation++
	c.result = nil
	c.lastErr = nil
	c.store.Clear()
	notify := c.setStateLocked(Idle)
	c.mu.Unlock()
	notify()
	return nil
}

// Close releases any staged preview, drops the held result and returns to
// Idle. A response still in flight is treated as stale.
func (c *Controller) Close() {
	c.mu.Lock()
	c.generation++
	c.result = nil
	c.store.Clear()
	notify := c.setStateLocked(Idle)
	c.mu.Unlock()
	notify()
}

// setStateLocked changes state and returns a func that notifies observers.
// Callers must invoke the returned func after releasing the lock.
func (c *Controller) setStateLocked(to State) func() {
	from := c.state
	c.state = to
	if from == to {
		return func() {}
	}

	c.log.Debug("Session transition",
		logger.String("from", from.String()),
		logger.String("to", to.String()),
		logger.Uint64("generation", c.generation))

	observers := slices.Clone(c.observers)
	return func() {
		for _, fn := range observers {
			fn(from, to)
		}
	}
}

func (c *Controller) invalidTransition(op string) error {
	return errors.New(fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, op, c.state)).
		Component(componentName).
		Category(errors.CategoryState).
		Priority(errors.PriorityLow).
		Context("operation", op).
		Context("state", c.state.String()).
		Build()
}

func asRemoteAnalysisError(err error, filename string) error {
	if errors.IsRemoteAnalysis(err) {
		return err
	}
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryRemoteAnalysis).
		UserMessage("Analysis failed: "+errors.UserMessage(err)).
		Context("filename", filename).
		Build()
}
