package audio

import (
	"time"
)

// ChunksPerSecond is the capture granularity: every chunk holds 250ms of audio.
const ChunksPerSecond = 4

const DefaultSampleRate = 16000
const DefaultChannels = 1

// Chunk is one capture read of interleaved signed 16-bit samples. Chunks are
// never modified after the source hands them out.
type Chunk []int16

type Format struct {
	SampleRate int
	Channels   int
}

// FramesPerChunk is the number of frames (samples per channel) in one chunk.
func (f Format) FramesPerChunk() int {
	return f.SampleRate / ChunksPerSecond
}

// SamplesPerChunk is the number of interleaved samples in one chunk.
func (f Format) SamplesPerChunk() int {
	return f.FramesPerChunk() * f.Channels
}

// ChunksFor converts a wall-clock capture duration into a whole chunk count,
// rounding down.
func (f Format) ChunksFor(d time.Duration) int {
	frames := f.FramesPerChunk()
	if frames <= 0 {
		return 0
	}
	if d <= 0 {
		return 0
	}
	return int(int64(d) * int64(f.SampleRate) / (int64(frames) * int64(time.Second)))
}

// ChunkSource yields fixed-size chunks from a live (or recorded) input.
type ChunkSource interface {
	Format() Format
	// ReadChunk blocks until a full chunk is available.
	ReadChunk() (Chunk, error)
	Close() error
}

// Utterance is one captured speech segment, in capture order.
type Utterance struct {
	Format Format
	Chunks []Chunk
}

func (u Utterance) Len() int {
	return len(u.Chunks)
}

func (u Utterance) Empty() bool {
	return len(u.Chunks) == 0
}

func (u Utterance) Duration() time.Duration {
	if u.Format.SampleRate <= 0 || u.Format.Channels <= 0 {
		return 0
	}
	var samples int
	for _, c := range u.Chunks {
		samples += len(c)
	}
	frames := samples / u.Format.Channels
	return time.Duration(frames) * time.Second / time.Duration(u.Format.SampleRate)
}
