package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/K3das/hark/audio"
	"github.com/K3das/hark/utils"
	"go.uber.org/zap"
)

var (
	ErrClosed      = fmt.Errorf("recorder closed")
	ErrNotComplete = fmt.Errorf("no completed recording")
	ErrNoUtterance = fmt.Errorf("recording is empty")
	ErrNoExporter  = fmt.Errorf("recorder has no exporter")

	ErrInvalidLimits = fmt.Errorf("invalid session limits")
)

const DefaultOnsetMultiplier = 2.5
const DefaultStartDelay = time.Second * 2

const DefaultMaxDuration = time.Second * 15
const DefaultQuiescenceTimeout = time.Second * 2
const DefaultInitTimeout = time.Second * 5

// Options tune the detector and stay fixed for the recorder's lifetime.
type Options struct {
	// OnsetMultiplier scales the calibrated ambient power into the onset threshold.
	OnsetMultiplier float64 `env:"ONSET_MULTIPLIER" envDefault:"2.5"`
	// StartDelay is how much pre-onset audio is kept.
	StartDelay time.Duration `env:"START_DELAY" envDefault:"2s"`
	// ThresholdFloor is the lowest threshold calibration may produce.
	ThresholdFloor float64 `env:"THRESHOLD_FLOOR" envDefault:"0"`
}

// Limits apply to a single session.
type Limits struct {
	MaxDuration       time.Duration `env:"MAX_DURATION" envDefault:"15s"`
	QuiescenceTimeout time.Duration `env:"QUIESCENCE_TIMEOUT" envDefault:"2s"`
	InitTimeout       time.Duration `env:"INIT_TIMEOUT" envDefault:"5s"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxDuration:       DefaultMaxDuration,
		QuiescenceTimeout: DefaultQuiescenceTimeout,
		InitTimeout:       DefaultInitTimeout,
	}
}

// Validate checks the limits against the chunk size of format. MaxDuration
// must hold at least one chunk, otherwise no recording could respect it.
func (l Limits) Validate(format audio.Format) error {
	if format.ChunksFor(l.MaxDuration) < 1 {
		return fmt.Errorf("%w: max duration %s is shorter than one chunk", ErrInvalidLimits, l.MaxDuration)
	}
	if l.QuiescenceTimeout <= 0 {
		return fmt.Errorf("%w: quiescence timeout must be positive", ErrInvalidLimits)
	}
	if l.InitTimeout < 0 {
		return fmt.Errorf("%w: init timeout is negative", ErrInvalidLimits)
	}
	return nil
}

type Result struct {
	Session   uint64
	Utterance audio.Utterance
	State     State
	Reason    Reason
	Threshold float64
	Err       error
}

type session struct {
	id  uint64
	log *zap.Logger
	d   *detector

	// closed once the capture loop has exited and result is set
	captured     chan struct{}
	capturedOnce sync.Once
	// closed after the completion callback returns
	done chan struct{}

	result Result
}

func (s *session) markCaptured() {
	s.capturedOnce.Do(func() { close(s.captured) })
}

// Recorder runs one endpoint-detecting session at a time against a shared
// ChunkSource.
type Recorder struct {
	log *zap.Logger

	src  audio.ChunkSource
	opts Options

	onComplete func(Result)
	exporter   *Exporter

	// serializes Start so only one session is ever reading the source
	startMu sync.Mutex

	mu     sync.Mutex
	cur    *session
	last   *session
	nextID uint64
	closed bool
}

type RecorderOption func(*Recorder)

// WithCompletionCallback registers fn to run once per session on the capture
// goroutine, after the session ends and before WaitComplete observes it.
func WithCompletionCallback(fn func(Result)) RecorderOption {
	return func(r *Recorder) {
		r.onComplete = fn
	}
}

func WithExporter(e *Exporter) RecorderOption {
	return func(r *Recorder) {
		r.exporter = e
	}
}

func New(parentLogger *zap.Logger, src audio.ChunkSource, opts Options, extraOptions ...RecorderOption) *Recorder {
	r := &Recorder{
		log:  parentLogger.Named("recorder"),
		src:  src,
		opts: opts,
	}
	for _, option := range extraOptions {
		option(r)
	}

	return r
}

// Start stops any running session, then begins a new one in the background.
// Limits that fail Validate are rejected with ErrInvalidLimits.
func (r *Recorder) Start(limits Limits) error {
	err := limits.Validate(r.src.Format())
	if err != nil {
		return err
	}

	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	prev := r.cur
	r.mu.Unlock()

	if prev != nil {
		r.stopSession(prev)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.nextID++
	s := &session{
		id:       r.nextID,
		d:        newDetector(r.src, r.opts, limits),
		captured: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.log = r.log.With(zap.Uint64("session", s.id))
	r.cur = s
	r.mu.Unlock()

	s.log.With(
		zap.Duration("max_duration", limits.MaxDuration),
		zap.Duration("quiescence_timeout", limits.QuiescenceTimeout),
		zap.Duration("init_timeout", limits.InitTimeout),
	).Debug("starting session")

	go r.runSession(s)

	return nil
}

func (r *Recorder) runSession(s *session) {
	defer close(s.done)
	defer s.markCaptured()
	defer utils.PanicRecovery(s.log)

	res := s.d.run()
	res.Session = s.id
	s.result = res

	r.mu.Lock()
	r.last = s
	r.mu.Unlock()
	s.markCaptured()

	log := s.log.With(
		zap.Stringer("state", res.State),
		zap.Stringer("reason", res.Reason),
		zap.Int("chunks", res.Utterance.Len()),
		zap.Float64("threshold", res.Threshold),
	)
	if res.Err != nil {
		log.Error("session failed", zap.Error(res.Err))
	} else {
		log.Debug("session complete")
	}

	if r.onComplete != nil {
		r.onComplete(res)
	}
}

func (r *Recorder) stopSession(s *session) {
	s.d.stop.Store(true)
	<-s.captured
}

// Stop asks the running session to end and waits for its capture loop to
// exit. It returns within about one chunk duration. It does not wait for the
// completion callback, so it is safe to call from inside it; Close does wait.
func (r *Recorder) Stop() {
	r.mu.Lock()
	s := r.cur
	r.mu.Unlock()

	if s != nil {
		r.stopSession(s)
	}
}

// Close stops the running session, waits for its completion callback, and
// makes any later Start fail with ErrClosed. It must not be called from the
// completion callback.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.closed = true
	s := r.cur
	r.mu.Unlock()

	if s != nil {
		r.stopSession(s)
		<-s.done
	}
}

// WaitComplete blocks until the current session has completed or timeout
// elapses. It does not consume the completion, so repeated calls agree.
func (r *Recorder) WaitComplete(timeout time.Duration) bool {
	r.mu.Lock()
	s := r.cur
	r.mu.Unlock()

	if s == nil {
		return true
	}

	if timeout <= 0 {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

func (r *Recorder) IsComplete() bool {
	return r.WaitComplete(0)
}

// Session returns the id of the current (or most recent) session, 0 if none
// was started.
func (r *Recorder) Session() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return 0
	}
	return r.cur.id
}

func (r *Recorder) State() State {
	r.mu.Lock()
	s := r.cur
	r.mu.Unlock()

	if s == nil {
		return StateIdle
	}
	return s.d.State()
}

// Info returns the chunk count of the current (or most recent) buffer and the
// power over its final two chunks.
func (r *Recorder) Info() (int, float64) {
	r.mu.Lock()
	s := r.cur
	r.mu.Unlock()

	if s == nil {
		return 0, 0
	}
	return s.d.Progress()
}

// Result returns the most recently completed session's result.
func (r *Recorder) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last == nil {
		return Result{}, false
	}
	return r.last.result, true
}

// Export writes the most recently completed utterance to target. It fails with
// ErrNotComplete while a session is running.
func (r *Recorder) Export(ctx context.Context, target string) error {
	if r.exporter == nil {
		return ErrNoExporter
	}
	if !r.IsComplete() {
		return ErrNotComplete
	}

	res, ok := r.Result()
	if !ok {
		return ErrNotComplete
	}

	return r.exporter.Export(ctx, res.Utterance, target)
}
