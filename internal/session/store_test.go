package session

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/patch"
)

const baseGame = `const CONFIG = {
    dinoColor: '#535353',
    gameSpeed: 6,
    doubleJump: false,
    background: '#f7f7f7',
  };
  const LEVEL = {
      obstacleTypes: [
        {"width":20,"height":40,"color":"#535353","y":170,"shape":"rect","bounceSpeed":0}
      ],
      powerUps: [],
  };
  // CUSTOM_CODE_START
  // CUSTOM_CODE_END`

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(max int, now *time.Time) *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(&config.SessionConfig{MaxSessions: max}, logger, func() time.Time { return *now })
}

func TestRenderUnknownSessionReturnsBase(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	if got := store.Render(patch.Parse(baseGame), "unknown-id"); got != baseGame {
		t.Fatalf("expected base document unchanged, got:\n%s", got)
	}
}

func TestRenderAppliesPatchSet(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("abc", domain.SessionPatchSet{
		Config: map[string]any{
			"dinoColor":  "#ff0000",
			"gameSpeed":  float64(9.5),
			"doubleJump": true,
		},
		PowerUps:   []json.RawMessage{json.RawMessage(`{"type":"speed"}`)},
		CustomCode: "score *= 2;",
	})

	out := store.Render(patch.Parse(baseGame), "abc")

	for _, want := range []string{
		"dinoColor: '#ff0000',",
		"gameSpeed: 9.5,",
		"doubleJump: true,",
		`{"type":"speed"}`,
		"// CUSTOM_CODE_START\n    score *= 2;\n    // CUSTOM_CODE_END",
		`"color":"#535353"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderSkipsUnknownConfigKeys(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("abc", domain.SessionPatchSet{Config: map[string]any{"nope": 1, "gameSpeed": 7}})

	out := store.Render(patch.Parse(baseGame), "abc")
	if !strings.Contains(out, "gameSpeed: 7,") {
		t.Fatalf("known key should still apply:\n%s", out)
	}
}

func TestPutReplacesWholesale(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("abc", domain.SessionPatchSet{CustomCode: "a();", Config: map[string]any{"gameSpeed": 7}})
	store.Put("abc", domain.SessionPatchSet{CustomCode: "b();"})

	got, ok := store.Get("abc")
	if !ok {
		t.Fatal("expected session")
	}
	if got.CustomCode != "b();" || len(got.Config) != 0 {
		t.Fatalf("expected replacement without merge, got %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("abc", domain.SessionPatchSet{Config: map[string]any{"gameSpeed": 7}})
	got, _ := store.Get("abc")
	got.Config["gameSpeed"] = 100

	again, _ := store.Get("abc")
	if again.Config["gameSpeed"] != 7 {
		t.Fatal("mutating a returned patch set must not affect the store")
	}
}

func TestDelete(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("abc", domain.SessionPatchSet{CustomCode: "a();"})
	store.Delete("abc")
	store.Delete("never-existed")

	if _, ok := store.Get("abc"); ok {
		t.Fatal("expected session to be gone")
	}
}

func TestPutEvictsOldestTouched(t *testing.T) {
	now := testNow
	store := newTestStore(2, &now)

	store.Put("a", domain.SessionPatchSet{})
	now = now.Add(time.Second)
	store.Put("b", domain.SessionPatchSet{})
	now = now.Add(time.Second)
	store.Get("a")
	now = now.Add(time.Second)
	store.Put("c", domain.SessionPatchSet{})

	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
	if _, ok := store.Get("b"); ok {
		t.Fatal("b was touched least recently and should have been evicted")
	}
}

func TestSweepIdle(t *testing.T) {
	now := testNow
	store := newTestStore(10, &now)

	store.Put("old", domain.SessionPatchSet{})
	now = now.Add(time.Hour)
	store.Put("new", domain.SessionPatchSet{})
	now = now.Add(30 * time.Minute)

	if removed := store.SweepIdle(time.Hour); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := store.Get("new"); !ok {
		t.Fatal("recent session should survive")
	}
}

func TestConfigLiteral(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"#fff", "'#fff'"},
		{"rgb(1,2,3)", "'rgb(1,2,3)'"},
		{"12", "12"},
		{true, "true"},
		{float64(0.5), "0.5"},
		{float64(8), "8"},
		{7, "7"},
	}
	for _, tc := range cases {
		if got := ConfigLiteral(tc.in); got != tc.want {
			t.Errorf("ConfigLiteral(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
