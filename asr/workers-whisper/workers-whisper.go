package workerswhisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/K3das/hark/asr"
	"github.com/K3das/hark/utils"
)

// used for the transcript tag
const apiPrefix = "workers_whisper-"

const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

// responses carry text and a vtt track, anything bigger is garbage
const maxResponseSize = 1024 * 1024

type CloudflareResponse[T any] struct {
	Result   *T    `json:"result"`
	Success  bool  `json:"success"`
	Errors   []any `json:"errors"`
	Messages []any `json:"messages"`
}

type SpeechRecognitionResponse struct {
	// The transcription
	Text      string  `json:"text"`
	Vtt       string  `json:"vtt"`
	WordCount float64 `json:"word_count"`
}

type WorkersWhisperClient struct {
	baseURL string
	account string
	token   string
	model   string

	http *http.Client
}

type WorkersWhisperClientOptions struct {
	BaseURL   string `env:"CF_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	Account   string `env:"CF_ACCOUNT_ID,required"`
	Token     string `env:"CF_TOKEN,required"`
	ModelName string `env:"CF_MODEL_NAME,required"`
}

func NewWorkersWhisperClient(options WorkersWhisperClientOptions) *WorkersWhisperClient {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &WorkersWhisperClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		account: options.Account,
		token:   options.Token,
		model:   options.ModelName,
		http:    http.DefaultClient,
	}
}

// WithHTTPClient replaces the default http client.
func (w *WorkersWhisperClient) WithHTTPClient(client *http.Client) *WorkersWhisperClient {
	w.http = client
	return w
}

func (w *WorkersWhisperClient) runCF(ctx context.Context, data []byte) (*CloudflareResponse[SpeechRecognitionResponse], error) {
	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/accounts/%s/ai/run/%s", w.baseURL, w.account, w.model), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := w.http.Do(req)
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

	var cfResp *CloudflareResponse[SpeechRecognitionResponse]
	err = json.Unmarshal(body, &cfResp)
	if err != nil {
		return nil, fmt.Errorf("decoding response json: %w", err)
	}
	if cfResp == nil {
		return nil, fmt.Errorf("empty response body")
	}

	return cfResp, nil
}

func (w *WorkersWhisperClient) Run(ctx context.Context, data []byte) (*asr.ASROutput, error) {
	resp, err := w.runCF(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	if !resp.Success {
		return nil, fmt.Errorf("request unsuccessful: %v", resp.Errors)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("nil result")
	}

	text := strings.TrimSpace(resp.Result.Text)
	if text == "" {
		return nil, fmt.Errorf("empty transcription")
	}

	return &asr.ASROutput{
		ModelName:  apiPrefix + w.model,
		Candidates: []string{text},
	}, nil
}
