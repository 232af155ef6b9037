package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"
)

var ErrSourceClosed = fmt.Errorf("audio source closed")

// PortAudioSource reads chunks from the default input device.
type PortAudioSource struct {
	log *zap.Logger

	format Format
	stream *portaudio.Stream
	buf    []int16

	mu     sync.Mutex
	closed bool
}

func OpenPortAudioSource(parentLogger *zap.Logger, format Format) (*PortAudioSource, error) {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	s := &PortAudioSource{
		log:    parentLogger.Named("portaudio"),
		format: format,
		buf:    make([]int16, format.SamplesPerChunk()),
	}

	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), format.FramesPerChunk(), s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting input stream: %w", err)
	}
	s.stream = stream

	s.log.With(
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("channels", format.Channels),
		zap.Int("frames_per_chunk", format.FramesPerChunk()),
	).Info("input stream open")

	return s, nil
}

func (s *PortAudioSource) Format() Format {
	return s.format
}

func (s *PortAudioSource) ReadChunk() (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}

	err := s.stream.Read()
	if errors.Is(err, portaudio.InputOverflowed) {
		s.log.Debug("input overflowed, keeping chunk")
	} else if err != nil {
		return nil, fmt.Errorf("reading input stream: %w", err)
	}

	chunk := make(Chunk, len(s.buf))
	copy(chunk, s.buf)
	return chunk, nil
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := portaudio.Terminate()

	return errors.Join(stopErr, closeErr, termErr)
}
