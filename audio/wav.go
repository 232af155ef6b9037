package audio

import (
	"fmt"
	"io"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// WAV format tag for uncompressed PCM
const wavFormatPCM = 1

// WriteWAV writes the utterance as a 16-bit PCM WAV file at path.
func WriteWAV(path string, u Utterance) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	defer f.Close()

	var samples int
	for _, c := range u.Chunks {
		samples += len(c)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: u.Format.Channels,
			SampleRate:  u.Format.SampleRate,
		},
		Data:           make([]int, 0, samples),
		SourceBitDepth: bitDepth,
	}
	for _, c := range u.Chunks {
		for _, s := range c {
			buf.Data = append(buf.Data, int(s))
		}
	}

	enc := wav.NewEncoder(f, u.Format.SampleRate, bitDepth, u.Format.Channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("writing wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing wav encoder: %w", err)
	}

	return nil
}

// ReadWAV reads a 16-bit PCM WAV file and splits it into chunks. A trailing
// partial chunk is padded with silence.
func ReadWAV(path string) (Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return Utterance{}, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Utterance{}, fmt.Errorf("not a valid wav file: %s", path)
	}
	if dec.BitDepth != bitDepth {
		return Utterance{}, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return Utterance{}, fmt.Errorf("decoding pcm: %w", err)
	}

	u := Utterance{
		Format: Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
		},
	}

	size := u.Format.SamplesPerChunk()
	if size <= 0 {
		return Utterance{}, fmt.Errorf("invalid format: %d Hz, %d channels", dec.SampleRate, dec.NumChans)
	}

	for start := 0; start < len(pcm.Data); start += size {
		chunk := make(Chunk, size)
		end := min(start+size, len(pcm.Data))
		for i, v := range pcm.Data[start:end] {
			chunk[i] = int16(v)
		}
		u.Chunks = append(u.Chunks, chunk)
	}

	return u, nil
}

// WAVSource replays a recorded utterance as a ChunkSource. Once every chunk
// has been read, ReadChunk returns io.EOF.
type WAVSource struct {
	mu     sync.Mutex
	u      Utterance
	next   int
	closed bool
}

func NewWAVSource(u Utterance) *WAVSource {
	return &WAVSource{u: u}
}

func OpenWAVSource(path string) (*WAVSource, error) {
	u, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	return NewWAVSource(u), nil
}

func (s *WAVSource) Format() Format {
	return s.u.Format
}

func (s *WAVSource) ReadChunk() (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.next >= len(s.u.Chunks) {
		return nil, io.EOF
	}

	chunk := s.u.Chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *WAVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
