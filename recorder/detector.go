package recorder

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/K3das/hark/audio"
)

type State int32

const (
	StateIdle State = iota
	StateCalibrating
	StateAwaitingOnset
	StateRecording
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCalibrating:
		return "calibrating"
	case StateAwaitingOnset:
		return "awaiting_onset"
	case StateRecording:
		return "recording"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether the session has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Reason describes why a session ended.
type Reason int

const (
	ReasonNone Reason = iota
	// no chunk crossed the threshold before the init timeout
	ReasonNoSpeech
	// sustained low power after speech
	ReasonQuiescence
	// hard duration cap, buffer is untrimmed
	ReasonMaxDuration
	// external stop request
	ReasonStopped
	ReasonDeviceError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoSpeech:
		return "no_speech"
	case ReasonQuiescence:
		return "quiescence"
	case ReasonMaxDuration:
		return "max_duration"
	case ReasonStopped:
		return "stopped"
	case ReasonDeviceError:
		return "device_error"
	}
	return "unknown"
}

type progress struct {
	chunks    int
	lastPower float64
}

// detector runs the endpoint state machine for one session. Only the capture
// goroutine touches buf; everything else reads the published progress.
type detector struct {
	src    audio.ChunkSource
	format audio.Format
	opts   Options
	limits Limits

	stop  atomic.Bool
	state atomic.Int32

	threshold float64
	buf       []audio.Chunk

	progressMu sync.Mutex
	progress   progress
}

func newDetector(src audio.ChunkSource, opts Options, limits Limits) *detector {
	return &detector{
		src:    src,
		format: src.Format(),
		opts:   opts,
		limits: limits,
	}
}

func (d *detector) setState(s State) {
	d.state.Store(int32(s))
}

func (d *detector) State() State {
	return State(d.state.Load())
}

func (d *detector) Progress() (int, float64) {
	d.progressMu.Lock()
	defer d.progressMu.Unlock()
	return d.progress.chunks, d.progress.lastPower
}

func (d *detector) publish() {
	p := progress{chunks: len(d.buf)}
	if len(d.buf) >= 2 {
		p.lastPower = audio.RMSPower(d.buf[len(d.buf)-2:]...)
	}

	d.progressMu.Lock()
	d.progress = p
	d.progressMu.Unlock()
}

func (d *detector) read() (audio.Chunk, error) {
	chunk, err := d.src.ReadChunk()
	if err != nil {
		return nil, err
	}
	d.buf = append(d.buf, chunk)
	d.publish()
	return chunk, nil
}

func (d *detector) finish(state State, reason Reason, err error) Result {
	d.setState(state)
	d.publish()

	return Result{
		Utterance: audio.Utterance{Format: d.format, Chunks: d.buf},
		State:     state,
		Reason:    reason,
		Threshold: d.threshold,
		Err:       err,
	}
}

func (d *detector) discard() {
	d.buf = nil
}

// run blocks until the session reaches a terminal state. The stop flag is
// checked once per chunk, so a stop takes effect within one chunk duration.
func (d *detector) run() Result {
	d.setState(StateCalibrating)
	if d.stop.Load() {
		return d.finish(StateAborted, ReasonStopped, nil)
	}

	calibration, err := d.src.ReadChunk()
	if err != nil {
		return d.finish(StateAborted, ReasonDeviceError, err)
	}
	d.threshold = math.Max(audio.RMSPower(calibration)*d.opts.OnsetMultiplier, d.opts.ThresholdFloor)

	// Start validates limits, this only guards direct use
	maxChunks := d.format.ChunksFor(d.limits.MaxDuration)
	if maxChunks < 1 {
		return d.finish(StateCompleted, ReasonMaxDuration, nil)
	}

	d.setState(StateAwaitingOnset)
	onset := false
	for range d.format.ChunksFor(d.limits.InitTimeout) {
		if d.stop.Load() {
			d.discard()
			return d.finish(StateAborted, ReasonStopped, nil)
		}

		chunk, err := d.read()
		if err != nil {
			d.discard()
			return d.finish(StateAborted, ReasonDeviceError, err)
		}

		if audio.RMSPower(chunk) > d.threshold {
			// look-back window plus the onset chunk itself
			keep := min(d.format.ChunksFor(d.opts.StartDelay)+1, maxChunks)
			if len(d.buf) > keep {
				d.buf = d.buf[len(d.buf)-keep:]
			}
			d.publish()
			onset = true
			break
		}
	}

	if !onset {
		d.discard()
		return d.finish(StateCompleted, ReasonNoSpeech, nil)
	}

	d.setState(StateRecording)
	quiescenceChunks := d.quiescenceChunks()
	quiet := 0
	for len(d.buf) < maxChunks {
		if d.stop.Load() {
			return d.finish(StateAborted, ReasonStopped, nil)
		}

		chunk, err := d.read()
		if err != nil {
			d.discard()
			return d.finish(StateAborted, ReasonDeviceError, err)
		}

		if audio.RMSPower(chunk) <= d.threshold {
			quiet++
		} else {
			quiet = 0
		}

		if quiet >= quiescenceChunks {
			d.buf = d.buf[:len(d.buf)-quiet]
			return d.finish(StateCompleted, ReasonQuiescence, nil)
		}
	}

	return d.finish(StateCompleted, ReasonMaxDuration, nil)
}

// quiescenceChunks is ceil(timeout × rate / framesPerChunk), at least one.
func (d *detector) quiescenceChunks() int {
	frames := d.format.FramesPerChunk()
	if frames <= 0 {
		return 1
	}
	exact := d.limits.QuiescenceTimeout.Seconds() * float64(d.format.SampleRate) / float64(frames)
	n := int(math.Ceil(exact - 1e-9))
	return max(n, 1)
}
