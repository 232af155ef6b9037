package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ConvertFile re-encodes inputPath into outputPath, picking the container and
// codec from the output extension. sampleRate and channels are kept as given.
func (f *FFmpeg) ConvertFile(ctx context.Context, inputPath, outputPath string, sampleRate, channels int) error {
	ctx, cancel := context.WithTimeout(ctx, f.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		f.ffmpegBinary,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-ar:a", strconv.Itoa(sampleRate),
		"-ac:a", strconv.Itoa(channels),
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return fmt.Errorf("running ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return nil
}
