package asr

import (
	"context"
	"time"
)

type SpeechRecognitionAPI interface {
	Run(ctx context.Context, data []byte) (*ASROutput, error)
}

type ASROutput struct {
	// Candidates are the recognized texts, best hypothesis first
	Candidates []string
	ModelName  string
}

// Kind discriminates interim hypotheses from final results.
type Kind int

const (
	KindPartial Kind = iota + 1
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindPartial:
		return "partial"
	case KindResult:
		return "result"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names parse as 0.
func ParseKind(s string) Kind {
	switch s {
	case "partial":
		return KindPartial
	case "result":
		return KindResult
	}
	return 0
}

// Transcript is what gets delivered to the embedding application for one
// utterance.
type Transcript struct {
	Kind Kind
	// Tag identifies the recognizer that produced the candidates
	Tag        string
	Candidates []string

	Sequence       uint64
	AudioDuration  time.Duration
	ProcessingTime time.Duration
}

// Text returns the best candidate, or "" if there are none.
func (t Transcript) Text() string {
	if len(t.Candidates) == 0 {
		return ""
	}
	return t.Candidates[0]
}
