package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/roblox-funapp/internal/assets"
	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/llm"
	"github.com/roblox-funapp/internal/patch"
	"github.com/roblox-funapp/internal/prompt"
	"github.com/roblox-funapp/internal/session"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []llm.Request
	complete func(req llm.Request) (*llm.Response, error)
	image    func(req llm.ImageRequest) (string, error)
}

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.complete(req)
}

func (f *fakeProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (string, error) {
	if f.image == nil {
		return "", llm.ErrUnsupported
	}
	return f.image(req)
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates []string
}

func (f *fakeNotifier) BroadcastSessionUpdate(sessionID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, sessionID+":"+reason)
}

type fakeLookup struct{}

func (fakeLookup) Lookup(ctx context.Context, username string) (domain.PlayerProfile, error) {
	if username == "builderman" {
		return domain.PlayerProfile{Username: "builderman", UserID: 156}, nil
	}
	return domain.PlayerProfile{}, domain.ErrUserNotFound
}

func newTestService(provider *fakeProvider) (*FunService, *fakeNotifier) {
	return newTestServiceWithGame(provider, assets.DinoGame())
}

func newTestServiceWithGame(provider *fakeProvider, game string) (*FunService, *fakeNotifier) {
	cfg := config.DefaultConfig()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := &fakeNotifier{}
	svc := NewFunService(
		fakeLookup{},
		prompt.NewComposer(&cfg.LLM),
		provider,
		session.NewStore(&cfg.Session, logger, nil),
		patch.Parse(game),
		notifier,
		logger,
	)
	return svc, notifier
}

func toolCall(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: name, Name: name, Arguments: json.RawMessage(args)}
}

func TestLookupProfileRequiresUsername(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{})
	if _, err := svc.LookupProfile(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.LookupProfile(context.Background(), "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRoastWithImageFailureStillReturnsRoast(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: `{"title":"t","mainRoast":"m","rating":"Noob","funFact":"f"}`}, nil
		},
		image: func(req llm.ImageRequest) (string, error) {
			return "", errors.New("image backend down")
		},
	}
	svc, _ := newTestService(provider)

	roast, err := svc.Roast(context.Background(), domain.RoastRequest{Username: "builderman", WithImage: true})
	if err != nil {
		t.Fatal(err)
	}
	if roast.Title != "t" || roast.ImageURL != "" {
		t.Fatalf("unexpected roast %+v", roast)
	}
}

func TestRoastWithImage(t *testing.T) {
	var imagePrompt string
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: `{"title":"t","mainRoast":"m","rating":"Legend","funFact":"f"}`}, nil
		},
		image: func(req llm.ImageRequest) (string, error) {
			imagePrompt = req.Prompt
			return "https://img.example/roast.png", nil
		},
	}
	svc, _ := newTestService(provider)

	roast, err := svc.Roast(context.Background(), domain.RoastRequest{Username: "builderman", WithImage: true})
	if err != nil {
		t.Fatal(err)
	}
	if roast.ImageURL != "https://img.example/roast.png" {
		t.Fatalf("expected image url, got %+v", roast)
	}
	if !strings.Contains(imagePrompt, `"Legend" level player`) {
		t.Fatalf("image prompt should carry the roast rating: %s", imagePrompt)
	}
}

func TestRoastMalformed(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: `{"title":"t"}`}, nil
		},
	}
	svc, _ := newTestService(provider)

	if _, err := svc.Roast(context.Background(), domain.RoastRequest{Username: "x"}); !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if _, err := svc.Roast(context.Background(), domain.RoastRequest{}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestBattleRequiresTwoPlayers(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{})
	_, err := svc.Battle(context.Background(), domain.BattleRequest{Player1: &domain.PlayerProfile{}})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestFact(t *testing.T) {
	svc, _ := newTestService(&fakeProvider{})
	svc.pick = func(n int) int { return n - 1 }
	if got := svc.Fact(); got != facts[len(facts)-1] {
		t.Fatalf("got %q", got)
	}
}

func TestGameChatIsSessionScoped(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{ToolCalls: []llm.ToolCall{
				toolCall(prompt.ToolModifyProperty, `{"property":"dino.color","value":"#0000ff"}`),
				toolCall(prompt.ToolModifyProperty, `{"property":"speed","value":"9"}`),
				toolCall(prompt.ToolAddObstacle, `{"width":30,"height":60,"color":"#00ff00","shape":"circle"}`),
			}}, nil
		},
	}
	svc, notifier := newTestService(provider)
	base := svc.RenderSession("other")

	result, err := svc.GameChat(context.Background(), domain.GameChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "blue dino, faster, add a ball"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.GameModified {
		t.Fatal("expected game to be modified")
	}
	if result.SessionID == "" {
		t.Fatal("expected a minted session id")
	}
	if !strings.Contains(result.Message, "Updated dinoColor=#0000ff") || !strings.HasSuffix(result.Message, ".") {
		t.Fatalf("unexpected summary message %q", result.Message)
	}

	out := svc.RenderSession(result.SessionID)
	for _, want := range []string{"dinoColor: '#0000ff'", "gameSpeed: 9,", `"color":"#00ff00"`} {
		if !strings.Contains(out, want) {
			t.Errorf("session render missing %q", want)
		}
	}

	if svc.RenderSession("other") != base {
		t.Fatal("other sessions must keep seeing the base game")
	}
	if len(notifier.updates) != 1 || notifier.updates[0] != result.SessionID+":"+ReasonChat {
		t.Fatalf("unexpected notifications %v", notifier.updates)
	}
}

func TestGameChatAccumulatesAcrossTurns(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{
				Content:   "Added one!",
				ToolCalls: []llm.ToolCall{toolCall(prompt.ToolAddObstacle, `{"color":"#123456"}`)},
			}, nil
		},
	}
	svc, _ := newTestService(provider)

	for i := 0; i < 2; i++ {
		result, err := svc.GameChat(context.Background(), domain.GameChatRequest{SessionID: "s1"})
		if err != nil {
			t.Fatal(err)
		}
		if result.Message != "Added one!" || result.SessionID != "s1" {
			t.Fatalf("unexpected result %+v", result)
		}
	}

	doc := patch.Parse(svc.RenderSession("s1"))
	elements, err := doc.Elements(patch.SlotObstacles)
	if err != nil {
		t.Fatal(err)
	}
	// base obstacle plus two added
	if len(elements) != 3 {
		t.Fatalf("expected 3 obstacles, got %d", len(elements))
	}
}

func TestGameChatWithoutTools(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{}, nil
		},
	}
	svc, notifier := newTestService(provider)

	result, err := svc.GameChat(context.Background(), domain.GameChatRequest{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if result.GameModified || result.Message != defaultChatReply {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(notifier.updates) != 0 {
		t.Fatal("no notification expected when nothing changed")
	}
}

func TestGameChatProviderError(t *testing.T) {
	provider := &fakeProvider{
		complete: func(req llm.Request) (*llm.Response, error) {
			return nil, domain.NewUpstreamError("openai-chat", 500, nil)
		},
	}
	svc, _ := newTestService(provider)

	if _, err := svc.GameChat(context.Background(), domain.GameChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyIntentsDefaultsSession(t *testing.T) {
	svc, notifier := newTestService(&fakeProvider{})

	report, err := svc.ApplyIntents(context.Background(), "", []patch.Intent{
		patch.PropertyChange{Key: "doubleJump", RawValue: "true"},
		patch.CustomCodeBlock{Code: "score += 10;"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 applied, got %+v", report)
	}

	patches, ok := svc.sessions.Get(session.DefaultID)
	if !ok {
		t.Fatal("expected default session")
	}
	if patches.Config["doubleJump"] != true || patches.CustomCode != "score += 10;" {
		t.Fatalf("unexpected patch set %+v", patches)
	}
	if notifier.updates[0] != session.DefaultID+":"+ReasonIntents {
		t.Fatalf("unexpected notification %v", notifier.updates)
	}
}

func TestLegacyEditsPersistInSession(t *testing.T) {
	game := "let gravity = 0.6;\nlet gameSpeed = 5;\nfunction loop() {}\n"
	svc, notifier := newTestServiceWithGame(&fakeProvider{}, game)

	report, err := svc.ApplyIntents(context.Background(), "s1", []patch.Intent{
		patch.PropertyChange{Key: "gravity", RawValue: "0.9"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Modified() {
		t.Fatalf("expected the edit to apply, got %+v", report)
	}
	patches, _ := svc.sessions.Get("s1")
	if patches.Legacy["gravity"] != "0.9" {
		t.Fatalf("expected gravity recorded, got %+v", patches)
	}
	if !strings.Contains(svc.RenderSession("s1"), "let gravity = 0.9;") {
		t.Fatal("rendered session should carry the edit")
	}

	// a later edit renders from the stored set and must keep the first one
	if _, err := svc.ApplyIntents(context.Background(), "s1", []patch.Intent{
		patch.PropertyChange{Key: "gameSpeed", RawValue: "8"},
	}); err != nil {
		t.Fatal(err)
	}
	rendered := svc.RenderSession("s1")
	if !strings.Contains(rendered, "let gravity = 0.9;") || !strings.Contains(rendered, "let gameSpeed = 8;") {
		t.Fatalf("expected both edits, got %q", rendered)
	}
	if len(notifier.updates) != 2 {
		t.Fatalf("expected 2 notifications, got %v", notifier.updates)
	}
}

func TestAddToNonJSONArraySkipped(t *testing.T) {
	game := "const LEVEL = { obstacleTypes: [ { width: 20, color: '#f00' } ] };\n"
	svc, notifier := newTestServiceWithGame(&fakeProvider{}, game)

	report, err := svc.ApplyIntents(context.Background(), "s1", []patch.Intent{
		patch.AddObstacle{Obstacle: patch.Obstacle{Color: "#00ff00"}.WithDefaults()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Modified() {
		t.Fatalf("edit should not count as applied, got %+v", report)
	}
	if len(report.Skipped) != 1 || !errors.Is(report.Skipped[0].Err, domain.ErrSlotNotJSON) {
		t.Fatalf("expected one ErrSlotNotJSON skip, got %+v", report.Skipped)
	}
	if svc.RenderSession("s1") != game {
		t.Fatal("session should still render the base game")
	}
	if len(notifier.updates) != 0 {
		t.Fatalf("expected no notifications, got %v", notifier.updates)
	}
}

func TestSaveAndClearSession(t *testing.T) {
	svc, notifier := newTestService(&fakeProvider{})
	base := svc.RenderSession("s1")

	svc.SaveSession("s1", domain.SessionPatchSet{Config: map[string]any{"gravity": 1.2}})
	if !strings.Contains(svc.RenderSession("s1"), "gravity: 1.2,") {
		t.Fatal("saved config should render")
	}

	svc.ClearSession("s1")
	if svc.RenderSession("s1") != base {
		t.Fatal("cleared session should render the base game")
	}
	if len(notifier.updates) != 2 {
		t.Fatalf("expected 2 notifications, got %v", notifier.updates)
	}
}

func TestConfigValueRoundTrip(t *testing.T) {
	for _, literal := range []string{"'#ff0000'", "9", "0.6", "true", "'hello'"} {
		if got := session.ConfigLiteral(configValue(literal)); got != literal {
			t.Errorf("round trip of %q gave %q", literal, got)
		}
	}
}
