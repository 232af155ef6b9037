package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

var ErrFFprobeDurationInvalid = fmt.Errorf("got no packets from ffprobe, likely a bad file")

type probePacket struct {
	PtsTime      string `json:"pts_time"`
	DurationTime string `json:"duration_time"`
}

type probeOutput struct {
	Packets []probePacket `json:"packets"`
}

// parseProbeDuration returns `max pts time + its packet duration` from
// ffprobe's -show_packets json output.
func parseProbeDuration(output []byte) (float64, error) {
	var response probeOutput
	err := json.Unmarshal(output, &response)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe json response: %w", err)
	}

	if len(response.Packets) == 0 {
		return 0, ErrFFprobeDurationInvalid
	}

	var maxPts, maxDuration float64
	for _, packet := range response.Packets {
		pts, err := strconv.ParseFloat(packet.PtsTime, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing pts_time: %w", err)
		}
		duration, err := strconv.ParseFloat(packet.DurationTime, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing duration_time: %w", err)
		}
		if pts >= maxPts {
			maxPts = pts
			maxDuration = duration
		}
	}

	return maxPts + maxDuration, nil
}

// FFprobeDurationFromFile gets the duration of the input file in seconds from
// its packet metadata. Returns ErrFFprobeDurationInvalid if there are no packets.
func (f *FFmpeg) FFprobeDurationFromFile(ctx context.Context, filePath string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx,
		f.ffprobeBinary,
		"-i", filePath,
		"-v", "error",
		"-print_format", "json",
		"-show_entries", "packet=pts_time,duration_time",
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("running ffprobe: %w", err)
	}

	return parseProbeDuration(output)
}
