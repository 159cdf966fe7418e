// Package huggingface provides a model.Model for hosted HuggingFace inference
// endpoints speaking the text-generation payload
// {"inputs": ..., "parameters": {...}}.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hupe1980/swarmchat/model"
)

// DefaultMaxResponseBytes caps the response body read from an endpoint.
const DefaultMaxResponseBytes = 8 << 20

// ErrMalformedResponse is returned when the endpoint answers 2xx without a
// generation.
var ErrMalformedResponse = errors.New("huggingface: malformed response")

// Options configures the endpoint adapter.
type Options struct {
	EndpointURL string
	APIKey      string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client

	// MaxResponseBytes bounds the body read; larger bodies are an error.
	MaxResponseBytes int64
}

// Model calls one inference endpoint.
type Model struct {
	opts Options
}

// NewModel creates an endpoint-backed model.
func NewModel(endpointURL string, optFns ...func(o *Options)) *Model {
	opts := Options{
		EndpointURL: endpointURL,
		Temperature: 0.1,
		MaxTokens:   8192,
		HTTPClient:  http.DefaultClient,

		MaxResponseBytes: DefaultMaxResponseBytes,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{opts: opts}
}

type parameters struct {
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
	DoSample     bool    `json:"do_sample"`
}

type payload struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type generation struct {
	GeneratedText *string `json:"generated_text"`
}

// Generate implements model.Model. The request is flattened to a single
// prompt. Non-2xx statuses and undecodable bodies are returned as errors.
func (m *Model) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	if m.opts.EndpointURL == "" {
		return model.Response{}, fmt.Errorf("huggingface: endpoint url is empty")
	}

	p := payload{
		Inputs: req.Prompt(),
		Parameters: parameters{
			Temperature:  m.opts.Temperature,
			MaxNewTokens: m.opts.MaxTokens,
			DoSample:     true,
		},
	}
	if req.Temperature > 0 {
		p.Parameters.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		p.Parameters.MaxNewTokens = req.MaxTokens
	}

	body, err := json.Marshal(p)
	if err != nil {
		return model.Response{}, fmt.Errorf("huggingface: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return model.Response{}, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.opts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.opts.APIKey)
	}

	resp, err := m.opts.HTTPClient.Do(httpReq)
	if err != nil {
		return model.Response{}, fmt.Errorf("huggingface api error: %w", err)
	}
	defer resp.Body.Close()

	limit := m.opts.MaxResponseBytes
	if limit <= 0 {
		limit = DefaultMaxResponseBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return model.Response{}, fmt.Errorf("huggingface: read response: %w", err)
	}
	if int64(len(raw)) > limit {
		return model.Response{}, fmt.Errorf("huggingface: response exceeds %d bytes", limit)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Response{}, fmt.Errorf("huggingface api error: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	text, err := decodeGeneration(raw)
	if err != nil {
		return model.Response{}, err
	}
	return model.Response{Text: text, FinishReason: "stop"}, nil
}

// decodeGeneration accepts both the list form [{"generated_text": ...}] and
// the object form {"generated_text": ...}. An empty list or a missing
// generated_text field is ErrMalformedResponse.
func decodeGeneration(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	var gen generation
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []generation
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return "", fmt.Errorf("huggingface: decode response: %w", err)
		}
		if len(list) == 0 {
			return "", fmt.Errorf("%w: empty generation list", ErrMalformedResponse)
		}
		gen = list[0]
	} else if err := json.Unmarshal(trimmed, &gen); err != nil {
		return "", fmt.Errorf("huggingface: decode response: %w", err)
	}
	if gen.GeneratedText == nil {
		return "", fmt.Errorf("%w: no generated_text", ErrMalformedResponse)
	}
	return *gen.GeneratedText, nil
}

// Info returns metadata describing the endpoint.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.EndpointURL, Provider: "huggingface"}
}
