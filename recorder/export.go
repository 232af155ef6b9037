package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/K3das/hark/audio"
	"github.com/K3das/hark/media"
	"go.uber.org/zap"
)

const nativeExtension = ".wav"

// Exporter turns utterances into audio files. WAV is written natively; any
// other extension goes through ffmpeg.
type Exporter struct {
	log    *zap.Logger
	ffmpeg *media.FFmpeg
}

// NewExporter creates an exporter. ffmpeg may be nil, in which case only WAV
// targets can be written.
func NewExporter(parentLogger *zap.Logger, ffmpeg *media.FFmpeg) *Exporter {
	return &Exporter{
		log:    parentLogger.Named("exporter"),
		ffmpeg: ffmpeg,
	}
}

func (e *Exporter) Export(ctx context.Context, u audio.Utterance, target string) error {
	if u.Empty() {
		return ErrNoUtterance
	}

	ext := strings.ToLower(filepath.Ext(target))
	if ext == nativeExtension {
		err := audio.WriteWAV(target, u)
		if err != nil {
			os.Remove(target)
			return err
		}
		return nil
	}

	if e.ffmpeg == nil {
		return fmt.Errorf("no converter available for %q", ext)
	}

	intermediate := target + nativeExtension
	defer os.Remove(intermediate)

	err := audio.WriteWAV(intermediate, u)
	if err != nil {
		return fmt.Errorf("writing intermediate: %w", err)
	}

	err = e.ffmpeg.ConvertFile(ctx, intermediate, target, u.Format.SampleRate, u.Format.Channels)
	if err != nil {
		os.Remove(target)
		return fmt.Errorf("converting: %w", err)
	}

	duration, err := e.ffmpeg.FFprobeDurationFromFile(ctx, target)
	if errors.Is(err, media.ErrFFprobeDurationInvalid) {
		os.Remove(target)
		return fmt.Errorf("verifying converted file: %w", err)
	} else if err != nil {
		e.log.Warn("could not probe converted file", zap.String("target", target), zap.Error(err))
	} else {
		e.log.With(
			zap.String("target", target),
			zap.Float64("probed_duration", duration),
			zap.Duration("captured_duration", u.Duration()),
		).Debug("converted utterance")
	}

	return nil
}
