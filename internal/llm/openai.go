package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
)

// Upstream service names carried on domain.UpstreamError
const (
	ServiceOpenAIChat   = "openai-chat"
	ServiceOpenAIImages = "openai-images"
)

// OpenAI implements Provider over the OpenAI REST API
type OpenAI struct {
	http         *http.Client
	imageHTTP    *http.Client
	baseURL      string
	apiKey       string
	defaultModel string
	imageModel   string
	imageSize    string
	logger       *slog.Logger
}

// NewOpenAI creates an OpenAI provider
func NewOpenAI(cfg *config.LLMConfig, logger *slog.Logger) *OpenAI {
	return &OpenAI{
		http:         &http.Client{Timeout: cfg.Timeout},
		imageHTTP:    &http.Client{Timeout: cfg.ImageTimeout},
		baseURL:      strings.TrimRight(cfg.OpenAIURL, "/"),
		apiKey:       cfg.OpenAIKey,
		defaultModel: cfg.ChatModel,
		imageModel:   cfg.ImageModel,
		imageSize:    cfg.ImageSize,
		logger:       logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []toolSpec      `json:"tools,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a chat completion request
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	body := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, len(req.Messages)),
		Temperature: req.Temperature,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   req.Schema.Name,
				Strict: true,
				Schema: req.Schema.Definition,
			},
		}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, toolSpec{
			Type:     "function",
			Function: functionSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	var out chatResponse
	start := time.Now()
	if err := o.post(ctx, o.http, "/v1/chat/completions", ServiceOpenAIChat, body, &out); err != nil {
		return nil, err
	}
	o.logger.Debug("chat completion", "model", model, "duration", time.Since(start))

	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", domain.ErrMalformedResponse)
	}

	msg := out.Choices[0].Message
	resp := &Response{}
	if msg.Content != nil {
		resp.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if strings.TrimSpace(tc.Function.Arguments) == "" {
			args = json.RawMessage("{}")
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return resp, nil
}

type imageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage creates one vivid, standard quality image and returns its URL
func (o *OpenAI) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	body := imageRequest{
		Model:   firstNonEmpty(req.Model, o.imageModel),
		Prompt:  req.Prompt,
		N:       1,
		Size:    firstNonEmpty(req.Size, o.imageSize),
		Quality: "standard",
		Style:   "vivid",
	}

	var out imageResponse
	if err := o.post(ctx, o.imageHTTP, "/v1/images/generations", ServiceOpenAIImages, body, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("%w: no image url", domain.ErrMalformedResponse)
	}
	return out.Data[0].URL, nil
}

func (o *OpenAI) post(ctx context.Context, hc *http.Client, path, service string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cause error
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			cause = errors.New(apiErr.Error.Message)
		}
		return domain.NewUpstreamError(service, resp.StatusCode, cause)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
