package patch

import (
	"encoding/json"
	"fmt"
)

// wireIntent is the JSON shape of an intent on the ingestion topic
type wireIntent struct {
	Type          string    `json:"type"`
	Key           string    `json:"key,omitempty"`
	Value         string    `json:"value,omitempty"`
	StringLiteral bool      `json:"string_literal,omitempty"`
	Obstacle      *Obstacle `json:"obstacle,omitempty"`
	PowerUp       *PowerUp  `json:"power_up,omitempty"`
	Code          string    `json:"code,omitempty"`
}

// EncodeIntent marshals an intent to its wire form
func EncodeIntent(intent Intent) ([]byte, error) {
	w := wireIntent{Type: intent.Kind()}
	switch v := intent.(type) {
	case PropertyChange:
		w.Key, w.Value, w.StringLiteral = v.Key, v.RawValue, v.StringLiteral
	case AddObstacle:
		o := v.Obstacle
		w.Obstacle = &o
	case AddPowerUp:
		p := v.PowerUp
		w.PowerUp = &p
	case CustomCodeBlock:
		w.Code = v.Code
	default:
		return nil, fmt.Errorf("unknown intent %T", intent)
	}
	return json.Marshal(w)
}

// DecodeIntent parses the wire form. Missing obstacle or power-up bodies
// decode to defaults rather than failing.
func DecodeIntent(data []byte) (Intent, error) {
	var w wireIntent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding intent: %w", err)
	}

	switch w.Type {
	case "property":
		if w.Key == "" {
			return nil, fmt.Errorf("property intent without key")
		}
		return PropertyChange{Key: w.Key, RawValue: w.Value, StringLiteral: w.StringLiteral}, nil
	case "obstacle":
		var o Obstacle
		if w.Obstacle != nil {
			o = *w.Obstacle
		}
		return AddObstacle{Obstacle: o.WithDefaults()}, nil
	case "power_up":
		var p PowerUp
		if w.PowerUp != nil {
			p = *w.PowerUp
		}
		return AddPowerUp{PowerUp: p.WithDefaults()}, nil
	case "custom_code":
		return CustomCodeBlock{Code: w.Code}, nil
	default:
		return nil, fmt.Errorf("unknown intent type %q", w.Type)
	}
}
