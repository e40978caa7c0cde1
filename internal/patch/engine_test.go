package patch

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/roblox-funapp/internal/domain"
)

func TestPropertyChangeIsIdempotent(t *testing.T) {
	change := PropertyChange{Key: "gameSpeed", RawValue: "8"}

	once, report := ApplyText(testGame, change)
	if !report.Modified() {
		t.Fatal("expected the change to apply")
	}
	twice, _ := ApplyText(testGame, change, change)

	if once != twice {
		t.Fatal("applying the same property twice should equal applying it once")
	}
}

func TestStringPropertyIsQuoted(t *testing.T) {
	out, report := ApplyText(testGame, PropertyChange{Key: "dinoColor", RawValue: "#ff0000", StringLiteral: true})
	if len(report.Skipped) != 0 {
		t.Fatalf("unexpected skips: %+v", report.Skipped)
	}
	if !strings.Contains(out, "dinoColor: '#ff0000',") {
		t.Fatalf("expected quoted color:\n%s", out)
	}
}

func TestAddObstacleAppendsInOrder(t *testing.T) {
	first := AddObstacle{Obstacle: Obstacle{Width: 30, Color: "#111111", Shape: "circle"}}
	second := AddObstacle{Obstacle: Obstacle{Width: 40, Color: "#222222"}}

	doc, report := Apply(Parse(testGame), []Intent{first, second})
	if len(report.Applied) != 2 {
		t.Fatalf("expected 2 applied, got %v", report.Applied)
	}

	elements, err := doc.Elements(SlotObstacles)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 2 {
		t.Fatalf("expected 2 obstacles, got %d", len(elements))
	}

	var got []Obstacle
	for _, raw := range elements {
		var o Obstacle
		if err := json.Unmarshal(raw, &o); err != nil {
			t.Fatal(err)
		}
		got = append(got, o)
	}
	if got[0].Color != "#111111" || got[1].Color != "#222222" {
		t.Fatalf("order not kept: %+v", got)
	}
	if got[1].Height != 50 || got[1].Y != 170 || got[1].Shape != "rect" {
		t.Fatalf("defaults not applied: %+v", got[1])
	}
}

func TestAddPowerUpDefaults(t *testing.T) {
	doc, _ := Apply(Parse(testGame), []Intent{AddPowerUp{PowerUp: PowerUp{Type: "laser"}}})

	elements, err := doc.Elements(SlotPowerUps)
	if err != nil {
		t.Fatal(err)
	}
	if len(elements) != 2 {
		t.Fatalf("expected 2 power-ups, got %d", len(elements))
	}
	var p PowerUp
	if err := json.Unmarshal(elements[1], &p); err != nil {
		t.Fatal(err)
	}
	if p.Type != "shield" || p.Size != 24 || p.Duration != 5000 {
		t.Fatalf("unexpected power-up %+v", p)
	}
}

func TestCustomCodeKeepsMarkers(t *testing.T) {
	out, _ := ApplyText(testGame, CustomCodeBlock{Code: "score += 1;"})

	start := strings.Index(out, customCodeStart)
	end := strings.Index(out, customCodeEnd)
	if start < 0 || end < 0 || end < start {
		t.Fatalf("markers missing:\n%s", out)
	}
	if !strings.Contains(out[start:end], "score += 1;") {
		t.Fatal("code not placed between markers")
	}

	again, _ := ApplyText(out, CustomCodeBlock{Code: "score += 2;"})
	if strings.Contains(again, "score += 1;") {
		t.Fatal("custom code should be replaced, not appended")
	}
}

func TestSkippedIntentsDoNotStopLaterOnes(t *testing.T) {
	intents := []Intent{
		PropertyChange{Key: "noSuchKey", RawValue: "1"},
		PropertyChange{Key: "gameSpeed", RawValue: "9"},
	}
	out, report := ApplyText(testGame, intents...)

	if len(report.Skipped) != 1 || !errors.Is(report.Skipped[0].Err, domain.ErrKeyNotFound) {
		t.Fatalf("expected one ErrKeyNotFound skip, got %+v", report.Skipped)
	}
	if !strings.Contains(out, "gameSpeed: 9") {
		t.Fatal("later intent should still apply")
	}
}

func TestMissingSlotIsReported(t *testing.T) {
	_, report := ApplyText("const CONFIG = { gravity: 1 };", AddPowerUp{})
	if report.Modified() {
		t.Fatal("nothing should apply without a powerUps slot")
	}
	if len(report.Skipped) != 1 || !errors.Is(report.Skipped[0].Err, domain.ErrMissingSlot) {
		t.Fatalf("expected ErrMissingSlot, got %+v", report.Skipped)
	}
}

func TestLegacyFallback(t *testing.T) {
	legacy := "let gravity = 0.6;\nlet gameSpeed = 5;\nfunction jump() { dino.dy = -12; }\nconst dino = { color: '#535353' };"

	out, report := ApplyText(legacy,
		PropertyChange{Key: "gravity", RawValue: "0.9"},
		PropertyChange{Key: "jumpPower", RawValue: "-15"},
		PropertyChange{Key: "dinoColor", RawValue: "#00ff00", StringLiteral: true},
	)
	if len(report.Applied) != 3 {
		t.Fatalf("expected 3 applied, got %+v", report)
	}
	for _, want := range []string{"let gravity = 0.9;", "dino.dy = -15;", "color: '#00ff00'", "let gameSpeed = 5;"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLegacyObstacleColorReplacesEveryMatch(t *testing.T) {
	legacy := "const a = { color: '#ff5252' };\nconst b = { color: '#ff5252' };\nconst dino = { color: '#535353' };"

	out, report := ApplyText(legacy, PropertyChange{Key: "obstacleColor", RawValue: "#0000ff", StringLiteral: true})
	if len(report.Applied) != 1 {
		t.Fatalf("expected 1 applied, got %+v", report)
	}
	if strings.Count(out, "color: '#0000ff'") != 2 {
		t.Fatalf("both obstacle colors should change:\n%s", out)
	}
	if !strings.Contains(out, "color: '#535353'") {
		t.Fatalf("other colors should stay:\n%s", out)
	}
}

func TestNormalizeBool(t *testing.T) {
	cases := map[string]string{
		"true": "true", "TRUE": "true", "1": "true", "on": "true", "Yes": "true",
		"false": "false", "0": "false", "off": "false", "": "false", "maybe": "false",
	}
	for in, want := range cases {
		if got := NormalizeBool(in); got != want {
			t.Errorf("NormalizeBool(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStringLiteralEscapes(t *testing.T) {
	if got := StringLiteral(`it's`); got != `'it\'s'` {
		t.Fatalf("got %s", got)
	}
}

func TestDecodeIntent(t *testing.T) {
	intent, err := DecodeIntent([]byte(`{"type":"obstacle"}`))
	if err != nil {
		t.Fatal(err)
	}
	o, ok := intent.(AddObstacle)
	if !ok {
		t.Fatalf("expected AddObstacle, got %T", intent)
	}
	if o.Obstacle.Width != 50 || o.Obstacle.Shape != "rect" {
		t.Fatalf("expected defaults, got %+v", o.Obstacle)
	}

	if _, err := DecodeIntent([]byte(`{"type":"teleport"}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := DecodeIntent([]byte(`{"type":"property"}`)); err == nil {
		t.Fatal("expected error for property without key")
	}

	data, err := EncodeIntent(PropertyChange{Key: "dinoColor", RawValue: "#fff", StringLiteral: true})
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeIntent(data)
	if err != nil {
		t.Fatal(err)
	}
	if back != (PropertyChange{Key: "dinoColor", RawValue: "#fff", StringLiteral: true}) {
		t.Fatalf("got %+v", back)
	}
}
