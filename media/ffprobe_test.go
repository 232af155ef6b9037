package media

import (
	"errors"
	"math"
	"testing"
)

func TestParseProbeDuration(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr error
	}{
		{
			name:   "last packet wins",
			output: `{"packets":[{"pts_time":"0.000000","duration_time":"0.100000"},{"pts_time":"1.400000","duration_time":"0.100000"},{"pts_time":"0.700000","duration_time":"0.100000"}]}`,
			want:   1.5,
		},
		{
			name:    "no packets",
			output:  `{"packets":[]}`,
			wantErr: ErrFFprobeDurationInvalid,
		},
		{
			name:    "missing packets key",
			output:  `{}`,
			wantErr: ErrFFprobeDurationInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProbeDuration([]byte(tt.output))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("duration = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestParseProbeDurationBadNumbers(t *testing.T) {
	for _, output := range []string{
		`not json`,
		`{"packets":[{"pts_time":"N/A","duration_time":"0.1"}]}`,
		`{"packets":[{"pts_time":"0.1","duration_time":"N/A"}]}`,
	} {
		if _, err := parseProbeDuration([]byte(output)); err == nil {
			t.Errorf("expected error for %s", output)
		}
	}
}

func TestNewFFmpegOptions(t *testing.T) {
	f := NewFFmpeg(WithFFmpegBinary("/opt/ffmpeg"), WithFFprobeBinary(""), WithCommandTimeout(0))
	if f.ffmpegBinary != "/opt/ffmpeg" {
		t.Errorf("ffmpeg binary = %s", f.ffmpegBinary)
	}
	if f.ffprobeBinary != DefaultFFprobeBinary {
		t.Errorf("empty option should keep default, got %s", f.ffprobeBinary)
	}
	if f.commandTimeout != DefaultCommandTimeout {
		t.Errorf("zero timeout should keep default, got %s", f.commandTimeout)
	}
}
