package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/llm"
	"github.com/roblox-funapp/internal/patch"
	"github.com/roblox-funapp/internal/prompt"
	"github.com/roblox-funapp/internal/session"
)

// Session update reasons sent to viewers
const (
	ReasonChat    = "chat"
	ReasonIntents = "intents"
	ReasonSaved   = "saved"
	ReasonCleared = "cleared"
)

const defaultChatReply = "Done! Check your game!"

var facts = []string{
	"The first video game ever made was Tennis for Two in 1958.",
	"The original name for Pac-Man was Puck-Man.",
	"Minecraft is the best-selling video game of all time with over 300 million copies sold.",
	"The first Easter egg in a video game was hidden in the 1980 Atari game Adventure.",
	"Nintendo was founded in 1889 as a playing card company.",
	"The longest Monopoly game ever played lasted 70 straight days.",
	"The fear of video games is called Ludectrophobia.",
	"Mario was named after Nintendo's landlord, Mario Segale.",
	"The PS1's startup sound was designed to be intimidating to pirates.",
	"Lara Croft from Tomb Raider was originally going to be named Laura Cruz.",
}

// ProfileLookup resolves a Roblox username to a profile
type ProfileLookup interface {
	Lookup(ctx context.Context, username string) (domain.PlayerProfile, error)
}

// SessionNotifier tells viewers of a session that it changed
type SessionNotifier interface {
	BroadcastSessionUpdate(sessionID, reason string)
}

// FunService provides the business logic behind every endpoint
type FunService struct {
	profiles ProfileLookup
	composer *prompt.Composer
	provider llm.Provider
	sessions *session.Store
	base     *patch.Document
	notifier SessionNotifier
	logger   *slog.Logger
	pick     func(n int) int

	// serializes read-modify-write of session patch sets
	editMu sync.Mutex
}

// NewFunService creates a new service. base is the parsed game document every
// session renders from; it is never modified.
func NewFunService(
	profiles ProfileLookup,
	composer *prompt.Composer,
	provider llm.Provider,
	sessions *session.Store,
	base *patch.Document,
	notifier SessionNotifier,
	logger *slog.Logger,
) *FunService {
	return &FunService{
		profiles: profiles,
		composer: composer,
		provider: provider,
		sessions: sessions,
		base:     base,
		notifier: notifier,
		logger:   logger,
		pick:     rand.IntN,
	}
}

// LookupProfile returns the profile of a Roblox user
func (s *FunService) LookupProfile(ctx context.Context, username string) (domain.PlayerProfile, error) {
	if strings.TrimSpace(username) == "" {
		return domain.PlayerProfile{}, fmt.Errorf("%w: username required", domain.ErrInvalidRequest)
	}
	return s.profiles.Lookup(ctx, username)
}

// Roast generates a roast. When WithImage is set an image is attached if
// generation succeeds; image failures never fail the roast.
func (s *FunService) Roast(ctx context.Context, req domain.RoastRequest) (*domain.Roast, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, fmt.Errorf("%w: username required", domain.ErrInvalidRequest)
	}

	llmReq, err := s.composer.RoastRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("generating roast: %w", err)
	}
	roast, err := prompt.ParseRoast(resp.Content)
	if err != nil {
		return nil, err
	}

	if req.WithImage {
		url, err := s.Image(ctx, domain.ImageRequest{
			Username:       req.Username,
			Rating:         roast.Rating,
			AccountAgeDays: req.AccountAgeDays,
		})
		if err != nil {
			s.logger.Warn("roast image skipped", "username", req.Username, "error", err)
		} else {
			roast.ImageURL = url
		}
	}

	return &roast, nil
}

// Battle compares two players
func (s *FunService) Battle(ctx context.Context, req domain.BattleRequest) (*domain.BattleResult, error) {
	if req.Player1 == nil || req.Player2 == nil {
		return nil, fmt.Errorf("%w: two players required", domain.ErrInvalidRequest)
	}

	llmReq, err := s.composer.BattleRequest(*req.Player1, *req.Player2)
	if err != nil {
		return nil, err
	}
	resp, err := s.provider.Complete(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("comparing players: %w", err)
	}
	result, err := prompt.ParseBattle(resp.Content)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Image generates a meme image about a player and returns its URL
func (s *FunService) Image(ctx context.Context, req domain.ImageRequest) (string, error) {
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Rating) == "" {
		return "", fmt.Errorf("%w: username and rating required", domain.ErrInvalidRequest)
	}

	text, err := s.composer.ImagePrompt(req)
	if err != nil {
		return "", err
	}
	url, err := s.provider.GenerateImage(ctx, llm.ImageRequest{Prompt: text})
	if err != nil {
		return "", fmt.Errorf("generating image: %w", err)
	}
	return url, nil
}

// Meme returns a one-sentence gaming meme
func (s *FunService) Meme(ctx context.Context) (string, error) {
	resp, err := s.provider.Complete(ctx, s.composer.MemeRequest())
	if err != nil {
		return "", fmt.Errorf("generating meme: %w", err)
	}
	return resp.Content, nil
}

// Fact returns a random gaming fact
func (s *FunService) Fact() string {
	return facts[s.pick(len(facts))]
}

// GameChat sends the conversation to the game builder and applies the edits
// it asks for to the caller's session. A new session id is minted when the
// request carries none.
func (s *FunService) GameChat(ctx context.Context, req domain.GameChatRequest) (*domain.GameChatResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := s.provider.Complete(ctx, s.composer.GameChatRequest(req.Messages))
	if err != nil {
		return nil, fmt.Errorf("game chat: %w", err)
	}

	intents, errs := prompt.ParseIntents(resp.ToolCalls)
	for _, err := range errs {
		s.logger.Warn("tool call ignored", "session_id", sessionID, "error", err)
	}

	var report patch.Report
	if len(intents) > 0 {
		report = s.applyIntents(sessionID, intents, ReasonChat)
	}

	message := resp.Content
	if message == "" {
		if len(report.Applied) > 0 {
			message = strings.Join(report.Applied, "; ") + "."
		} else {
			message = defaultChatReply
		}
	}

	return &domain.GameChatResult{
		Message:      message,
		GameModified: report.Modified(),
		SessionID:    sessionID,
	}, nil
}

// ApplyIntents applies edit intents to a session outside of a chat
func (s *FunService) ApplyIntents(ctx context.Context, sessionID string, intents []patch.Intent) (patch.Report, error) {
	if err := ctx.Err(); err != nil {
		return patch.Report{}, err
	}
	if sessionID == "" {
		sessionID = session.DefaultID
	}
	return s.applyIntents(sessionID, intents, ReasonIntents), nil
}

// applyIntents renders the session, applies intents and records the result
// back into the session patch set. Slot problems skip single intents.
func (s *FunService) applyIntents(sessionID string, intents []patch.Intent, reason string) patch.Report {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	current, _ := s.sessions.Get(sessionID)
	doc, errs := session.ApplyPatchSet(s.base, current)
	for _, err := range errs {
		s.logger.Warn("session patch not applied", "session_id", sessionID, "error", err)
	}

	storable, rejected := storableIntents(doc, intents)
	out, report := patch.Apply(doc, storable)
	report.Skipped = append(report.Skipped, rejected...)
	for _, skipped := range report.Skipped {
		level := slog.LevelWarn
		if domain.IsSlotError(skipped.Err) {
			// the game simply lacks that anchor
			level = slog.LevelInfo
		}
		s.logger.Log(context.Background(), level, "edit not applied",
			"session_id", sessionID,
			"kind", skipped.Intent.Kind(),
			"error", skipped.Err,
		)
	}
	if !report.Modified() {
		return report
	}

	next := current.Clone()
	for _, intent := range report.Intents {
		switch in := intent.(type) {
		case patch.PropertyChange:
			literal, err := out.ConfigValue(in.Key)
			if err != nil {
				// applied through a legacy pattern outside CONFIG
				if next.Legacy == nil {
					next.Legacy = make(map[string]string)
				}
				next.Legacy[in.Key] = in.RawValue
				continue
			}
			if next.Config == nil {
				next.Config = make(map[string]any)
			}
			next.Config[in.Key] = configValue(literal)
		case patch.CustomCodeBlock:
			next.CustomCode = in.Code
		}
	}
	for _, slot := range []patch.Slot{patch.SlotObstacles, patch.SlotPowerUps} {
		elements, err := out.Elements(slot)
		if err != nil {
			s.logger.Debug("array slot not recorded", "session_id", sessionID, "slot", slot.String(), "error", err)
			continue
		}
		if len(elements) == 0 {
			continue
		}
		if slot == patch.SlotObstacles {
			next.ObstacleTypes = elements
		} else {
			next.PowerUps = elements
		}
	}

	s.sessions.Put(sessionID, next)
	s.notify(sessionID, reason)

	s.logger.Info("session edited",
		"session_id", sessionID,
		"applied", len(report.Applied),
		"skipped", len(report.Skipped),
	)
	return report
}

// storableIntents splits off array additions aimed at slots whose elements
// are not JSON. The session could not record them, so they are skipped.
func storableIntents(doc *patch.Document, intents []patch.Intent) ([]patch.Intent, []patch.Skipped) {
	storable := make([]patch.Intent, 0, len(intents))
	var rejected []patch.Skipped
	for _, intent := range intents {
		var slot patch.Slot
		switch intent.(type) {
		case patch.AddObstacle:
			slot = patch.SlotObstacles
		case patch.AddPowerUp:
			slot = patch.SlotPowerUps
		default:
			storable = append(storable, intent)
			continue
		}
		if _, err := doc.Elements(slot); errors.Is(err, domain.ErrSlotNotJSON) {
			rejected = append(rejected, patch.Skipped{Intent: intent, Err: err})
			continue
		}
		storable = append(storable, intent)
	}
	return storable, rejected
}

// configValue turns a CONFIG literal back into a session value that
// session.ConfigLiteral renders to the same literal.
func configValue(literal string) any {
	if b, err := strconv.ParseBool(literal); err == nil && (literal == "true" || literal == "false") {
		return b
	}
	if f, err := strconv.ParseFloat(literal, 64); err == nil {
		return f
	}
	if len(literal) >= 2 && literal[0] == '\'' && literal[len(literal)-1] == '\'' {
		inner := literal[1 : len(literal)-1]
		if !strings.ContainsAny(inner, `'\`) && (strings.HasPrefix(inner, "#") || strings.HasPrefix(inner, "rgb")) {
			return inner
		}
	}
	return literal
}

// SaveSession replaces the patch set of a session
func (s *FunService) SaveSession(sessionID string, patches domain.SessionPatchSet) {
	s.editMu.Lock()
	s.sessions.Put(sessionID, patches)
	s.editMu.Unlock()
	s.notify(sessionID, ReasonSaved)
}

// ClearSession drops the patch set of a session
func (s *FunService) ClearSession(sessionID string) {
	s.editMu.Lock()
	s.sessions.Delete(sessionID)
	s.editMu.Unlock()
	s.notify(sessionID, ReasonCleared)
}

// RenderSession returns the game document as the session sees it
func (s *FunService) RenderSession(sessionID string) string {
	return s.sessions.Render(s.base, sessionID)
}

func (s *FunService) notify(sessionID, reason string) {
	if s.notifier != nil {
		s.notifier.BroadcastSessionUpdate(sessionID, reason)
	}
}
