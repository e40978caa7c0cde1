package patch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/roblox-funapp/internal/domain"
)

// Intent is one structured edit to a game document
type Intent interface {
	// Kind names the intent for logs and wire encoding
	Kind() string
	apply(d *Document) (*Document, string, error)
}

// PropertyChange sets a CONFIG key. Applying it again with the same value is a no-op.
type PropertyChange struct {
	Key           string
	RawValue      string
	StringLiteral bool
}

// AddObstacle appends an obstacle type. Applying it twice appends twice.
type AddObstacle struct {
	Obstacle Obstacle
}

// AddPowerUp appends a power-up definition. Applying it twice appends twice.
type AddPowerUp struct {
	PowerUp PowerUp
}

// CustomCodeBlock replaces the code between the custom code markers
type CustomCodeBlock struct {
	Code string
}

func (PropertyChange) Kind() string  { return "property" }
func (AddObstacle) Kind() string     { return "obstacle" }
func (AddPowerUp) Kind() string      { return "power_up" }
func (CustomCodeBlock) Kind() string { return "custom_code" }

// Obstacle is one entry of the obstacleTypes array
type Obstacle struct {
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Color       string  `json:"color"`
	Y           float64 `json:"y"`
	Shape       string  `json:"shape"`
	BounceSpeed float64 `json:"bounceSpeed"`
}

// Obstacle shapes the game knows how to draw
var obstacleShapes = map[string]bool{"rect": true, "circle": true, "triangle": true}

// WithDefaults fills zero or invalid fields. y 170 is ground level.
func (o Obstacle) WithDefaults() Obstacle {
	if o.Width <= 0 {
		o.Width = 50
	}
	if o.Height <= 0 {
		o.Height = 50
	}
	if strings.TrimSpace(o.Color) == "" {
		o.Color = "#ff5252"
	}
	if o.Y <= 0 {
		o.Y = 170
	}
	if !obstacleShapes[o.Shape] {
		o.Shape = "rect"
	}
	if o.BounceSpeed < 0 {
		o.BounceSpeed = 0
	}
	return o
}

// PowerUp is one entry of the powerUps array
type PowerUp struct {
	Type     string  `json:"type"`
	Color    string  `json:"color"`
	Size     float64 `json:"size"`
	Y        float64 `json:"y"`
	Duration float64 `json:"duration"`
}

var powerUpTypes = map[string]bool{"shield": true, "speed": true, "doubleJump": true, "slowMotion": true}

// WithDefaults fills zero or invalid fields. Duration is in milliseconds.
func (p PowerUp) WithDefaults() PowerUp {
	if !powerUpTypes[p.Type] {
		p.Type = "shield"
	}
	if strings.TrimSpace(p.Color) == "" {
		p.Color = "#ffd700"
	}
	if p.Size <= 0 {
		p.Size = 24
	}
	if p.Y <= 0 {
		p.Y = 120
	}
	if p.Duration <= 0 {
		p.Duration = 5000
	}
	return p
}

func (c PropertyChange) literal() string {
	if c.StringLiteral {
		return StringLiteral(c.RawValue)
	}
	return c.RawValue
}

func (c PropertyChange) apply(d *Document) (*Document, string, error) {
	out, err := d.SetConfigValue(c.Key, c.literal())
	if err == nil {
		return out, fmt.Sprintf("Updated %s=%s", c.Key, c.RawValue), nil
	}

	if out, legacyErr := ApplyLegacy(d, c.Key, c.RawValue); legacyErr == nil {
		return out, fmt.Sprintf("Updated %s=%s", c.Key, c.RawValue), nil
	}
	return nil, "", err
}

// ApplyLegacy writes rawValue through the plain-variable pattern for key,
// leaving CONFIG alone. It fails when key has no pattern or the pattern
// matches nothing outside the slots.
func ApplyLegacy(d *Document, key, rawValue string) (*Document, error) {
	rule, ok := legacyRules[key]
	if !ok {
		return nil, fmt.Errorf("%s: no legacy pattern: %w", key, domain.ErrKeyNotFound)
	}
	out, ok := d.replaceLiteral(rule.re, rule.repl(rawValue), rule.global)
	if !ok {
		return nil, fmt.Errorf("%s: legacy pattern not found: %w", key, domain.ErrKeyNotFound)
	}
	return out, nil
}

func (a AddObstacle) apply(d *Document) (*Document, string, error) {
	o := a.Obstacle.WithDefaults()
	element, err := json.Marshal(o)
	if err != nil {
		return nil, "", err
	}
	out, err := d.AppendElement(SlotObstacles, string(element))
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("Added %s obstacle (%gx%g, %s)", o.Shape, o.Width, o.Height, o.Color), nil
}

func (a AddPowerUp) apply(d *Document) (*Document, string, error) {
	p := a.PowerUp.WithDefaults()
	element, err := json.Marshal(p)
	if err != nil {
		return nil, "", err
	}
	out, err := d.AppendElement(SlotPowerUps, string(element))
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("Added %s power-up (%s)", p.Type, p.Color), nil
}

func (c CustomCodeBlock) apply(d *Document) (*Document, string, error) {
	out, err := d.ReplaceCustomCode(c.Code)
	if err != nil {
		return nil, "", err
	}
	return out, "Updated custom code", nil
}

// legacyRule targets an older game layout that kept tunables in plain variables.
// It is only tried when the CONFIG slot or key cannot take the change.
type legacyRule struct {
	re   *regexp.Regexp
	repl func(value string) string
	// global rewrites every match instead of the first
	global bool
}

var legacyRules = map[string]legacyRule{
	"dinoColor": {
		re:   regexp.MustCompile(`color:\s*'[^']*'`),
		repl: func(v string) string { return "color: " + StringLiteral(v) },
	},
	"gravity": {
		re:   regexp.MustCompile(`let gravity = [\d.]+`),
		repl: func(v string) string { return "let gravity = " + v },
	},
	"gameSpeed": {
		re:   regexp.MustCompile(`let gameSpeed = [\d.]+`),
		repl: func(v string) string { return "let gameSpeed = " + v },
	},
	"obstacleColor": {
		re:     regexp.MustCompile(`color: '#ff5252'`),
		repl:   func(v string) string { return "color: " + StringLiteral(v) },
		global: true,
	},
	"jumpPower": {
		re:   regexp.MustCompile(`dino\.dy = -?[\d.]+`),
		repl: func(v string) string { return "dino.dy = " + v },
	},
}

// StringLiteral quotes v as a single-quoted JS string
func StringLiteral(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	return "'" + v + "'"
}

var truthy = regexp.MustCompile(`(?i)^(true|1|on|yes)$`)

// NormalizeBool maps true/1/on/yes (any case) to "true" and anything else to "false"
func NormalizeBool(v string) string {
	if truthy.MatchString(strings.TrimSpace(v)) {
		return "true"
	}
	return "false"
}
