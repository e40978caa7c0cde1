package domain

import (
	"encoding/json"
)

// ChatMessage is one turn of a conversation with the game builder.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RoastRequest represents a request to roast a player
type RoastRequest struct {
	Username         string `json:"username"`
	AccountAgeDays   int    `json:"accountAgeDays"`
	BadgeCount       int    `json:"badgeCount"`
	HasVerifiedBadge bool   `json:"hasVerifiedBadge"`
	WithImage        bool   `json:"withImage,omitempty"`
}

// Roast is the structured roast returned by the model
type Roast struct {
	Title     string `json:"title"`
	MainRoast string `json:"mainRoast"`
	Rating    string `json:"rating"`
	FunFact   string `json:"funFact"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// BattleRequest represents a request to compare two players
type BattleRequest struct {
	Player1 *PlayerProfile `json:"player1"`
	Player2 *PlayerProfile `json:"player2"`
}

// BattleResult is the structured comparison returned by the model
type BattleResult struct {
	Winner        string  `json:"winner"`
	BattleSummary string  `json:"battleSummary"`
	Player1Score  float64 `json:"player1Score"`
	Player2Score  float64 `json:"player2Score"`
	FinishingMove string  `json:"finishingMove"`
}

// ImageRequest represents a request for a meme image about a player
type ImageRequest struct {
	Username       string `json:"username"`
	Rating         string `json:"rating"`
	AccountAgeDays int    `json:"accountAgeDays"`
}

// GameChatRequest represents a game builder chat turn
type GameChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"sessionId,omitempty"`
}

// GameChatResult is returned after the model's edits are applied
type GameChatResult struct {
	Message      string `json:"message"`
	GameModified bool   `json:"gameModified"`
	SessionID    string `json:"sessionId,omitempty"`
}

// SessionPatchSet is the customization recorded for one game session.
// Obstacles and power-ups are kept as raw JSON objects and replace the
// corresponding arrays of the base document on render.
type SessionPatchSet struct {
	Config        map[string]any    `json:"config,omitempty"`
	ObstacleTypes []json.RawMessage `json:"obstacleTypes,omitempty"`
	PowerUps      []json.RawMessage `json:"powerUps,omitempty"`
	CustomCode    string            `json:"customCode,omitempty"`
	// Legacy holds values written through the plain-variable patterns of
	// games without a CONFIG entry for the key, by property name.
	Legacy map[string]string `json:"legacy,omitempty"`
}

// Clone returns a deep copy so callers never share maps or slices with the store.
func (p SessionPatchSet) Clone() SessionPatchSet {
	out := SessionPatchSet{CustomCode: p.CustomCode}
	if p.Config != nil {
		out.Config = make(map[string]any, len(p.Config))
		for k, v := range p.Config {
			out.Config[k] = v
		}
	}
	if p.Legacy != nil {
		out.Legacy = make(map[string]string, len(p.Legacy))
		for k, v := range p.Legacy {
			out.Legacy[k] = v
		}
	}
	out.ObstacleTypes = cloneRaw(p.ObstacleTypes)
	out.PowerUps = cloneRaw(p.PowerUps)
	return out
}

// IsEmpty reports whether the patch set changes nothing.
func (p SessionPatchSet) IsEmpty() bool {
	return len(p.Config) == 0 && len(p.Legacy) == 0 && len(p.ObstacleTypes) == 0 && len(p.PowerUps) == 0 && p.CustomCode == ""
}

func cloneRaw(in []json.RawMessage) []json.RawMessage {
	if in == nil {
		return nil
	}
	out := make([]json.RawMessage, len(in))
	for i, m := range in {
		out[i] = append(json.RawMessage(nil), m...)
	}
	return out
}

// SessionUpdateRequest is the body of POST /game-session
type SessionUpdateRequest struct {
	SessionData *SessionPatchSet `json:"sessionData"`
}

// IntentMessage carries edit intents for one session over the ingestion topic.
type IntentMessage struct {
	SessionID string            `json:"session_id"`
	Intents   []json.RawMessage `json:"intents"`
}
