package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// genaiProvider implements Provider with the official Gemini SDK.
type genaiProvider struct {
	client *genai.Client
	model  string
}

func newGenAIProvider(apiKey, model, baseURL string, timeout time.Duration) (*genaiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &genaiProvider{client: client, model: model}, nil
}

func (g *genaiProvider) Name() string {
	return "genai/" + g.model
}

func (g *genaiProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	// The API rejects a JSON mime type on grounded requests.
	if opts.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	} else if strings.EqualFold(opts.Format, "json") {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, firstNonEmpty(opts.Model, g.model), genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("genai generateContent: %w", classifyGenAIError(err))
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from genai")
	}
	return text, nil
}

// classifyGenAIError maps SDK API errors onto *HTTPError so WithRetry can
// tell transient failures apart.
func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &HTTPError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	return err
}
