package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/llm"
	"github.com/roblox-funapp/internal/patch"
)

// decodeStrict decodes content into out, rejecting unknown fields and
// checking that every required key is present.
func decodeStrict(content string, required []string, out any) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: empty content", domain.ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	for _, key := range required {
		if _, ok := fields[key]; !ok {
			return fmt.Errorf("%w: missing %q", domain.ErrMalformedResponse, key)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

// ParseRoast decodes a roast_response payload
func ParseRoast(content string) (domain.Roast, error) {
	var r domain.Roast
	if err := decodeStrict(content, []string{"title", "mainRoast", "rating", "funFact"}, &r); err != nil {
		return domain.Roast{}, err
	}
	return r, nil
}

// ParseBattle decodes a battle_result payload
func ParseBattle(content string) (domain.BattleResult, error) {
	var b domain.BattleResult
	if err := decodeStrict(content, []string{"winner", "battleSummary", "player1Score", "player2Score", "finishingMove"}, &b); err != nil {
		return domain.BattleResult{}, err
	}
	return b, nil
}

// propertyAlias maps a requested property to its CONFIG key
type propertyAlias struct {
	key    string
	quoted bool
	isBool bool
}

var propertyAliases = map[string]propertyAlias{}

func alias(a propertyAlias, names ...string) {
	for _, n := range names {
		propertyAliases[n] = a
	}
}

func init() {
	alias(propertyAlias{key: "dinoColor", quoted: true}, "dino.color", "dinocolor", "dino_colour")
	alias(propertyAlias{key: "gravity"}, "gravity")
	alias(propertyAlias{key: "gameSpeed"}, "gamespeed", "game.speed", "speed")
	alias(propertyAlias{key: "jumpPower"}, "jump", "jumppower", "dino.dy")
	alias(propertyAlias{key: "background", quoted: true}, "background", "backgroundcolor", "bg")
	alias(propertyAlias{key: "groundColor", quoted: true}, "ground", "groundcolor")
	alias(propertyAlias{key: "obstacleColor", quoted: true}, "obstacle.color", "obstaclecolor")
	alias(propertyAlias{key: "obstacleSpawnRate"}, "obstacle.spawnrate", "spawnrate", "spawn")
	alias(propertyAlias{key: "obstacleWidth"}, "obstacle.width")
	alias(propertyAlias{key: "obstacleHeight"}, "obstacle.height")
	alias(propertyAlias{key: "doubleJump", isBool: true}, "doublejump")
}

// ResolveProperty maps a tool call property and value to a CONFIG change.
// Unknown properties pass through as the raw key; colour-looking values are quoted.
func ResolveProperty(property, value string) patch.PropertyChange {
	property = strings.TrimSpace(property)
	value = strings.TrimSpace(value)

	a, ok := propertyAliases[strings.ToLower(property)]
	if !ok {
		return patch.PropertyChange{
			Key:           property,
			RawValue:      value,
			StringLiteral: strings.HasPrefix(value, "#") || strings.HasPrefix(value, "rgb"),
		}
	}
	if a.isBool {
		value = patch.NormalizeBool(value)
	}
	return patch.PropertyChange{Key: a.key, RawValue: value, StringLiteral: a.quoted}
}

// scalarString renders a JSON scalar as plain text: strings unquoted, numbers and bools as written
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

type propertyArgs struct {
	Property string          `json:"property"`
	Value    json.RawMessage `json:"value"`
}

type powerUpArgs struct {
	Kind     string  `json:"kind"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
	Y        float64 `json:"y"`
	Duration float64 `json:"duration"`
}

// ParseIntents turns tool calls into edit intents. A call that cannot be
// decoded is reported in errs and the rest of the batch still parses.
func ParseIntents(calls []llm.ToolCall) (intents []patch.Intent, errs []error) {
	for _, call := range calls {
		args := call.Arguments
		if len(bytes.TrimSpace(args)) == 0 {
			args = json.RawMessage("{}")
		}

		switch call.Name {
		case ToolModifyProperty:
			var a propertyArgs
			if err := json.Unmarshal(args, &a); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", call.Name, call.ID, err))
				continue
			}
			if strings.TrimSpace(a.Property) == "" {
				errs = append(errs, fmt.Errorf("%s %s: property is required", call.Name, call.ID))
				continue
			}
			value := ""
			if len(a.Value) > 0 {
				value = scalarString(a.Value)
			}
			if strings.TrimSpace(value) == "" {
				// an empty value would leave "key: ," in CONFIG
				errs = append(errs, fmt.Errorf("%s %s: value is required", call.Name, call.ID))
				continue
			}
			intents = append(intents, ResolveProperty(a.Property, value))

		case ToolAddObstacle:
			var o patch.Obstacle
			if err := json.Unmarshal(args, &o); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", call.Name, call.ID, err))
				continue
			}
			intents = append(intents, patch.AddObstacle{Obstacle: o.WithDefaults()})

		case ToolAddPowerUp:
			var p powerUpArgs
			if err := json.Unmarshal(args, &p); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", call.Name, call.ID, err))
				continue
			}
			powerUp := patch.PowerUp{Type: p.Kind, Color: p.Color, Size: p.Size, Y: p.Y, Duration: p.Duration}
			intents = append(intents, patch.AddPowerUp{PowerUp: powerUp.WithDefaults()})

		default:
			errs = append(errs, fmt.Errorf("unknown tool %q", call.Name))
		}
	}
	return intents, errs
}
