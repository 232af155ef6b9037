package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/K3das/hark/asr"
	"github.com/K3das/hark/audio"
	"github.com/K3das/hark/recorder"
	"github.com/K3das/hark/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMinChunks = 4
const DefaultArtifactFormat = "flac"
const DefaultRequestTimeout = time.Second * 30

// max artifact size in bytes
const DefaultMaxArtifactSize = 1024 * 1024 * 10

var ErrExited = fmt.Errorf("pipeline exited")

// Handler receives transcripts on the worker goroutine, in job order.
type Handler func(ctx context.Context, t asr.Transcript)

// Exporter writes an utterance to an artifact file.
type Exporter interface {
	Export(ctx context.Context, u audio.Utterance, target string) error
}

type Options struct {
	ParentLogger *zap.Logger

	Source   audio.ChunkSource
	ASR      asr.SpeechRecognitionAPI
	Exporter Exporter
	Handler  Handler

	// zero fields take the recorder defaults, except StartDelay
	Detector recorder.Options
	Limits   recorder.Limits

	// ArtifactDir holds exported utterances until the worker is done with them.
	ArtifactDir string
	// ArtifactFormat is the artifact file extension, without the dot.
	ArtifactFormat string
	// MinChunks is the shortest utterance that becomes a job.
	MinChunks       int
	RequestTimeout  time.Duration
	MaxArtifactSize int
}

// Pipeline captures utterances back to back and transcribes them in order on
// a single worker goroutine.
type Pipeline struct {
	log *zap.Logger

	rec      *recorder.Recorder
	asrAPI   asr.SpeechRecognitionAPI
	exporter Exporter
	handler  Handler

	limits          recorder.Limits
	detector        recorder.Options
	artifactDir     string
	artifactFormat  string
	minChunks       int
	requestTimeout  time.Duration
	maxArtifactSize int

	playing  atomic.Bool
	flushing atomic.Bool

	// guards the decision to start a session, so Play and the completion
	// handler never both start one
	controlMu sync.Mutex
	// last session whose completion handler has decided on a restart
	handledSession uint64
	exited         bool

	queue    *jobQueue
	sequence atomic.Uint64

	errs chan error

	// worker lifetime
	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}

	// bounds exports running in the completion handler, cancelled first on Exit
	exportCtx    context.Context
	exportCancel context.CancelFunc

	exitOnce sync.Once
}

func New(ctx context.Context, options Options) (*Pipeline, error) {
	if options.Source == nil {
		return nil, fmt.Errorf("no audio source")
	}
	if options.ASR == nil {
		return nil, fmt.Errorf("no speech recognition api")
	}
	if options.Exporter == nil {
		return nil, fmt.Errorf("no exporter")
	}

	p := &Pipeline{
		log:      options.ParentLogger.Named("pipeline"),
		asrAPI:   options.ASR,
		exporter: options.Exporter,
		handler:  options.Handler,

		limits:          options.Limits,
		artifactDir:     options.ArtifactDir,
		artifactFormat:  strings.TrimPrefix(options.ArtifactFormat, "."),
		minChunks:       options.MinChunks,
		requestTimeout:  options.RequestTimeout,
		maxArtifactSize: options.MaxArtifactSize,

		queue:      newJobQueue(),
		errs:       make(chan error, 8),
		workerDone: make(chan struct{}),
	}

	if p.limits.MaxDuration <= 0 {
		p.limits.MaxDuration = recorder.DefaultMaxDuration
	}
	if p.limits.QuiescenceTimeout <= 0 {
		p.limits.QuiescenceTimeout = recorder.DefaultQuiescenceTimeout
	}
	if p.limits.InitTimeout <= 0 {
		p.limits.InitTimeout = recorder.DefaultInitTimeout
	}
	err := p.limits.Validate(options.Source.Format())
	if err != nil {
		return nil, err
	}

	// a zero StartDelay is a valid choice, no look-back
	p.detector = options.Detector
	if p.detector.OnsetMultiplier <= 0 {
		p.detector.OnsetMultiplier = recorder.DefaultOnsetMultiplier
	}
	if p.detector.StartDelay < 0 {
		p.detector.StartDelay = recorder.DefaultStartDelay
	}

	if p.artifactDir == "" {
		p.artifactDir = os.TempDir()
	}
	if p.artifactFormat == "" {
		p.artifactFormat = DefaultArtifactFormat
	}
	if p.minChunks <= 0 {
		p.minChunks = DefaultMinChunks
	}
	if p.requestTimeout <= 0 {
		p.requestTimeout = DefaultRequestTimeout
	}
	if p.maxArtifactSize <= 0 {
		p.maxArtifactSize = DefaultMaxArtifactSize
	}

	err = os.MkdirAll(p.artifactDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}

	p.rec = recorder.New(options.ParentLogger, options.Source, p.detector,
		recorder.WithCompletionCallback(p.recordingComplete),
	)

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.exportCtx, p.exportCancel = context.WithCancel(p.ctx)
	go p.runWorker()

	return p, nil
}

// Play starts continuous capture. It is a no-op if already playing.
func (p *Pipeline) Play() error {
	p.controlMu.Lock()
	defer p.controlMu.Unlock()

	if p.exited {
		return ErrExited
	}
	if p.playing.Load() {
		return nil
	}
	p.playing.Store(true)

	// a session whose completion hasn't been handled yet will chain into the
	// next one by itself
	if current := p.rec.Session(); current != 0 && current != p.handledSession {
		p.log.Debug("resuming, running session will restart capture")
		return nil
	}

	err := p.rec.Start(p.limits)
	if err != nil {
		p.playing.Store(false)
		return fmt.Errorf("starting recording: %w", err)
	}

	p.log.Info("playing")
	return nil
}

// Pause stops capture after the current session. That session's utterance is
// dropped, and queued jobs are discarded rather than submitted.
func (p *Pipeline) Pause() {
	p.controlMu.Lock()
	defer p.controlMu.Unlock()

	if p.playing.Swap(false) {
		p.log.Info("paused")
	}
}

// Flush discards every queued job, and any in-flight result, without
// delivering transcripts. Capture is unaffected.
func (p *Pipeline) Flush() {
	p.flushing.Store(true)
	p.queue.Wake()
	p.log.With(zap.Int("pending", p.queue.Len())).Info("flushing")
}

// Exit stops capture and the worker. Once it returns no more transcripts are
// delivered. It must not be called from the Handler.
func (p *Pipeline) Exit() {
	p.exitOnce.Do(func() {
		p.controlMu.Lock()
		p.exited = true
		p.playing.Store(false)
		p.controlMu.Unlock()

		// an export in flight would otherwise hold Close for the whole conversion
		p.exportCancel()
		p.rec.Close()

		p.cancel()
		<-p.workerDone

		for {
			job, ok := p.queue.Pop()
			if !ok {
				break
			}
			p.removeArtifact(p.log, job.Artifact)
		}

		p.log.Info("exited")
	})
}

// Errors delivers capture failures. Each one has already stopped playback.
func (p *Pipeline) Errors() <-chan error {
	return p.errs
}

func (p *Pipeline) IsPlaying() bool {
	return p.playing.Load()
}

func (p *Pipeline) IsFlushing() bool {
	return p.flushing.Load()
}

// Pending is the number of queued jobs, not counting one in flight.
func (p *Pipeline) Pending() int {
	return p.queue.Len()
}

func (p *Pipeline) Recorder() *recorder.Recorder {
	return p.rec
}

func (p *Pipeline) reportError(err error) {
	select {
	case p.errs <- err:
	default:
		p.log.Warn("error channel full, dropping error", zap.Error(err))
	}
}

// recordingComplete runs on the capture goroutine of the session that ended.
func (p *Pipeline) recordingComplete(res recorder.Result) {
	log := p.log.With(zap.Uint64("session", res.Session))
	defer utils.PanicRecovery(log)

	if res.Err != nil {
		p.controlMu.Lock()
		p.handledSession = res.Session
		p.playing.Store(false)
		p.controlMu.Unlock()

		log.Error("capture failed, stopping", zap.Error(res.Err))
		p.reportError(fmt.Errorf("recording session %d: %w", res.Session, res.Err))
		return
	}

	p.enqueueUtterance(log, res)

	p.controlMu.Lock()
	defer p.controlMu.Unlock()

	p.handledSession = res.Session
	if !p.playing.Load() {
		log.Debug("not playing, capture idle")
		return
	}

	err := p.rec.Start(p.limits)
	if errors.Is(err, recorder.ErrClosed) {
		p.playing.Store(false)
	} else if err != nil {
		p.playing.Store(false)
		log.Error("failed to start next session", zap.Error(err))
		p.reportError(fmt.Errorf("starting session: %w", err))
	}
}

func (p *Pipeline) enqueueUtterance(log *zap.Logger, res recorder.Result) {
	u := res.Utterance
	log = log.With(
		zap.Stringer("reason", res.Reason),
		zap.Int("chunks", u.Len()),
		zap.Duration("audio_duration", u.Duration()),
	)

	if u.Len() < p.minChunks {
		log.Debug("utterance too short, dropping")
		return
	}
	if !p.playing.Load() {
		log.Info("paused, dropping utterance")
		return
	}
	if p.flushing.Load() {
		log.Info("flushing, dropping utterance")
		return
	}

	seq := p.sequence.Add(1)
	artifact := filepath.Join(p.artifactDir, fmt.Sprintf("hark-%d-%s.%s", seq, uuid.NewString(), p.artifactFormat))
	log = log.With(zap.Uint64("sequence", seq), zap.String("artifact", artifact))

	err := p.exporter.Export(p.exportCtx, u, artifact)
	if err != nil {
		log.Error("failed to export utterance", zap.Error(err))
		p.removeArtifact(log, artifact)
		return
	}

	p.queue.Push(Job{
		Artifact:      artifact,
		Sequence:      seq,
		AudioDuration: u.Duration(),
		Enqueued:      time.Now(),
	})
	log.Debug("enqueued utterance")
}

func (p *Pipeline) runWorker() {
	defer close(p.workerDone)
	defer utils.PanicRecoveryReport(p.log, p.reportError)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.queue.Ready():
		}

		p.drain()
	}
}

// drain handles queued jobs until the queue is empty, then re-arms Flush.
func (p *Pipeline) drain() {
	for {
		if p.ctx.Err() != nil {
			return
		}

		job, ok := p.queue.Pop()
		if !ok {
			break
		}
		p.process(job)
	}

	if p.flushing.Swap(false) {
		p.log.Info("flush complete")
	}
}

func (p *Pipeline) process(job Job) {
	ctx, log := utils.LogContextWith(p.ctx, p.log,
		zap.Uint64("sequence", job.Sequence),
		zap.String("artifact", job.Artifact),
	)
	defer p.removeArtifact(log, job.Artifact)

	if p.flushing.Load() {
		log.Info("flushing, discarding job")
		return
	}
	if !p.playing.Load() {
		log.Info("paused, discarding job")
		return
	}

	data, err := utils.ReadFileLimit(job.Artifact, p.maxArtifactSize)
	if err != nil {
		log.Error("failed to read artifact", zap.Error(err))
		return
	}

	start := time.Now()

	requestCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	output, err := p.asrAPI.Run(requestCtx, data)
	if err != nil {
		log.Warn("transcription failed", zap.Error(err))
		return
	}

	processingTime := time.Since(start)

	if p.flushing.Load() {
		log.Info("flushed while in flight, dropping result")
		return
	}
	if p.ctx.Err() != nil {
		return
	}

	log.With(
		zap.String("model", output.ModelName),
		zap.Int("candidates", len(output.Candidates)),
		zap.Duration("processing_time", processingTime),
		zap.Duration("queue_time", start.Sub(job.Enqueued)),
	).Info("transcribed utterance")

	if p.handler == nil {
		return
	}

	p.deliver(ctx, log, asr.Transcript{
		Kind:           asr.KindResult,
		Tag:            output.ModelName,
		Candidates:     output.Candidates,
		Sequence:       job.Sequence,
		AudioDuration:  job.AudioDuration,
		ProcessingTime: processingTime,
	})
}

func (p *Pipeline) deliver(ctx context.Context, log *zap.Logger, t asr.Transcript) {
	defer utils.PanicRecovery(log)
	p.handler(ctx, t)
}

func (p *Pipeline) removeArtifact(log *zap.Logger, artifact string) {
	err := os.Remove(artifact)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove artifact", zap.Error(err))
	}
}
