package speechapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/K3das/hark/asr"
	"github.com/K3das/hark/utils"
)

// used as the transcript tag
const ModelName = "speech_api"

// responses are a few hypotheses of text, anything bigger is garbage
const maxResponseSize = 1024 * 256

type Hypothesis struct {
	Utterance  string  `json:"utterance"`
	Confidence float64 `json:"confidence,omitempty"`
}

type RecognitionResponse struct {
	Status     *int         `json:"status"`
	ID         string       `json:"id,omitempty"`
	Hypotheses []Hypothesis `json:"hypotheses"`
}

// ParseError means the service answered, but not with anything usable.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "unusable recognition response: " + e.Reason
	}
	return fmt.Sprintf("unusable recognition response: %s: %s", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseResponse extracts the candidate utterances, best first. The body may
// hold several concatenated JSON objects; the first successful one with
// hypotheses wins.
func ParseResponse(body []byte) ([]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &ParseError{Reason: "empty body"}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var lastStatus *int
	for {
		var resp RecognitionResponse
		err := dec.Decode(&resp)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, &ParseError{Reason: "malformed json", Err: err}
		}

		if resp.Status == nil {
			return nil, &ParseError{Reason: "missing status"}
		}
		lastStatus = resp.Status
		if *resp.Status != 0 {
			continue
		}

		var candidates []string
		for _, h := range resp.Hypotheses {
			text := strings.TrimSpace(h.Utterance)
			if text != "" {
				candidates = append(candidates, text)
			}
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}

	if lastStatus != nil && *lastStatus != 0 {
		return nil, &ParseError{Reason: fmt.Sprintf("status %d", *lastStatus)}
	}
	return nil, &ParseError{Reason: "no hypotheses"}
}

type SpeechAPIClient struct {
	endpoint    string
	contentType string
	userAgent   string

	http *http.Client
}

type SpeechAPIClientOptions struct {
	Endpoint   string `env:"ENDPOINT,required"`
	Key        string `env:"KEY"`
	Language   string `env:"LANGUAGE" envDefault:"en-US"`
	MaxResults int    `env:"MAX_RESULTS" envDefault:"10"`
	// Encoding is the MIME type of the uploaded audio, the rate is appended
	Encoding   string `env:"ENCODING" envDefault:"audio/x-flac"`
	SampleRate int    `env:"SAMPLE_RATE" envDefault:"16000"`
	UserAgent  string `env:"USER_AGENT" envDefault:"hark"`
}

func NewSpeechAPIClient(options SpeechAPIClientOptions) (*SpeechAPIClient, error) {
	endpoint, err := url.Parse(options.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}

	query := endpoint.Query()
	if options.Language != "" {
		query.Set("lang", options.Language)
	}
	if options.MaxResults > 0 {
		query.Set("maxresults", fmt.Sprint(options.MaxResults))
	}
	if options.Key != "" {
		query.Set("key", options.Key)
	}
	endpoint.RawQuery = query.Encode()

	return &SpeechAPIClient{
		endpoint:    endpoint.String(),
		contentType: fmt.Sprintf("%s; rate=%d", options.Encoding, options.SampleRate),
		userAgent:   options.UserAgent,
		http:        http.DefaultClient,
	}, nil
}

// WithHTTPClient replaces the default http client.
func (c *SpeechAPIClient) WithHTTPClient(client *http.Client) *SpeechAPIClient {
	c.http = client
	return c
}

func (c *SpeechAPIClient) Run(ctx context.Context, data []byte) (*asr.ASROutput, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", c.contentType)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-ok http response: [%d] %s", resp.StatusCode, resp.Status)
	}

	body, err := utils.ReadAllLimit(resp.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	candidates, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}

	return &asr.ASROutput{
		Candidates: candidates,
		ModelName:  ModelName,
	}, nil
}
