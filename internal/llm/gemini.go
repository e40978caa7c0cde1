package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
)

// ServiceGemini is the upstream name carried on Gemini errors
const ServiceGemini = "gemini"

// Gemini implements Provider over the Google Generative AI SDK.
// It has no image generation.
type Gemini struct {
	client       *genai.Client
	defaultModel string
	logger       *slog.Logger
}

// NewGemini creates a Gemini provider. Close releases the SDK client.
func NewGemini(ctx context.Context, cfg *config.LLMConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("gemini provider requires GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client, defaultModel: cfg.ChatModel, logger: logger}, nil
}

// Close closes the underlying client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete sends the conversation as a chat session. System turns become
// the system instruction; the last turn is the message sent.
func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	name := req.Model
	if name == "" {
		name = g.defaultModel
	}
	model := g.client.GenerativeModel(name)

	var system []genai.Part
	var turns []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, genai.Text(m.Content))
		case RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: no conversation turns", domain.ErrInvalidRequest)
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: system}
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema.Definition)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			}
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := model.StartChat()
	chat.History = turns[:len(turns)-1]
	last := turns[len(turns)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, domain.NewUpstreamError(ServiceGemini, http.StatusBadGateway, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no candidates", domain.ErrMalformedResponse)
	}

	out := &Response{}
	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				args = []byte("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      p.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

// GenerateImage is not available on Gemini
func (g *Gemini) GenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	return "", ErrUnsupported
}

// toGenaiSchema converts a JSON Schema map into the SDK schema type
func toGenaiSchema(def map[string]any) *genai.Schema {
	if def == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := def["type"].(string); ok {
		switch t {
		case "object":
			s.Type = genai.TypeObject
		case "array":
			s.Type = genai.TypeArray
		case "string":
			s.Type = genai.TypeString
		case "number":
			s.Type = genai.TypeNumber
		case "integer":
			s.Type = genai.TypeInteger
		case "boolean":
			s.Type = genai.TypeBoolean
		}
	}
	if d, ok := def["description"].(string); ok {
		s.Description = d
	}
	switch enum := def["enum"].(type) {
	case []string:
		s.Enum = enum
	case []any:
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	switch req := def["required"].(type) {
	case []string:
		s.Required = req
	case []any:
		for _, r := range req {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if props, ok := def["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	if items, ok := def["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	return s
}
