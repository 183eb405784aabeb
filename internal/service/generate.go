package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrEmptyGeneration is returned when the generation service produced no
// usable text. Recorded on the transformation as a generation failure.
var ErrEmptyGeneration = errors.New("Generated code was empty.")

// CodeGenerator produces transformation scripts from prompts. The live
// implementation talks to an OpenAI-compatible chat-completions endpoint;
// tests substitute fakes.
type CodeGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(cumulative string) error) (string, error)
}

// GenerationService handles script generation using an LLM chat API.
type GenerationService struct {
	client   *resty.Client
	model    string
	endpoint string
}

// GenerationConfig holds configuration for the generation service.
type GenerationConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewGenerationService creates a new generation service.
// Parameters:
//   - cfg: generation configuration including provider, model, and API key.
//
// Returns:
//   - *GenerationService: initialized LLM client wrapper.
func NewGenerationService(cfg *GenerationConfig) *GenerationService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &GenerationService{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (s *GenerationService) GetModel() string {
	return s.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Generate produces the full script text in one shot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - systemPrompt: fixed instruction describing the script contract.
//   - userPrompt: augmented user prompt (data sample + request).
//
// Returns:
//   - string: generated script text, trimmed.
//   - error: non-nil if the API request fails or the result is empty.
func (s *GenerationService) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call generation API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("generation API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("generation API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from generation API (status: %d)", httpResp.StatusCode())
	}

	code := strings.TrimSpace(resp.Choices[0].Message.Content)
	if code == "" {
		return "", ErrEmptyGeneration
	}
	return code, nil
}

// GenerateStream produces the script incrementally, invoking onDelta with
// the cumulative generated text after each increment. An onDelta error
// aborts the stream and is returned to the caller.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - systemPrompt: fixed instruction describing the script contract.
//   - userPrompt: augmented user prompt (data sample + request).
//   - onDelta: callback receiving the cumulative text; nil to ignore.
//
// Returns:
//   - string: final generated script text, trimmed.
//   - error: non-nil if the API request fails or the result is empty.
func (s *GenerationService) GenerateStream(ctx context.Context, systemPrompt, userPrompt string, onDelta func(cumulative string) error) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: true,
	}

	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call generation API: %w", err)
	}
	body := httpResp.RawBody()
	defer body.Close()

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		return "", fmt.Errorf("generation API returned error: HTTP %d", httpResp.StatusCode())
	}

	var generated strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		generated.WriteString(chunk.Choices[0].Delta.Content)
		if onDelta != nil {
			if err := onDelta(strings.TrimSpace(generated.String())); err != nil {
				return "", err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read generation stream: %w", err)
	}

	code := strings.TrimSpace(generated.String())
	if code == "" {
		return "", ErrEmptyGeneration
	}
	return code, nil
}
