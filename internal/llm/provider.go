package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roblox-funapp/internal/config"
)

// ErrUnsupported is returned when a provider lacks a capability
var ErrUnsupported = errors.New("operation not supported by provider")

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema asks the provider for a JSON response matching Definition (JSON Schema)
type Schema struct {
	Name       string
	Definition map[string]any
}

// Tool is a callable function the model may invoke
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a provider-neutral completion request
type Request struct {
	Model       string
	Messages    []Message
	Schema      *Schema
	Tools       []Tool
	Temperature *float64
}

// ToolCall is one function invocation chosen by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Response is the provider-neutral completion result
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// ImageRequest asks for one generated image
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
}

// Provider is a language model backend
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// GenerateImage returns a URL for the generated image
	GenerateImage(ctx context.Context, req ImageRequest) (string, error)
}

// New builds the provider named by cfg.Provider
func New(ctx context.Context, cfg *config.LLMConfig, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg, logger), nil
	case "gemini":
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
