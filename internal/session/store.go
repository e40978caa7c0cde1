package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
	"github.com/roblox-funapp/internal/patch"
)

// DefaultID is used when a caller does not name a session
const DefaultID = "default"

type entry struct {
	patches domain.SessionPatchSet
	touched time.Time
}

// Store keeps the patch set of each game session in process memory.
// It is constructed once per process and shared by handlers through injection.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxSessions int
	now         func() time.Time
	logger      *slog.Logger
}

// NewStore creates a session store. A nil clock uses time.Now.
func NewStore(cfg *config.SessionConfig, logger *slog.Logger, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions:    make(map[string]*entry),
		maxSessions: cfg.MaxSessions,
		now:         now,
		logger:      logger,
	}
}

// Put replaces the patch set of a session wholesale
func (s *Store) Put(id string, patches domain.SessionPatchSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists && s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	s.sessions[id] = &entry{patches: patches.Clone(), touched: s.now()}
}

// Get returns a copy of the patch set of a session
func (s *Store) Get(id string) (domain.SessionPatchSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return domain.SessionPatchSet{}, false
	}
	e.touched = s.now()
	return e.patches.Clone(), true
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepIdle removes sessions untouched for longer than maxIdle and returns how many were removed
func (s *Store) SweepIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, e := range s.sessions {
		if e.touched.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if oldestID == "" || e.touched.Before(oldest) {
			oldestID, oldest = id, e.touched
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
		s.logger.Debug("evicted session", "session_id", oldestID)
	}
}

// Render returns the base document with the session's patch set applied.
// An unknown session id returns the base unchanged.
func (s *Store) Render(base *patch.Document, id string) string {
	return s.RenderDocument(base, id).String()
}

// RenderDocument is Render without the final serialization
func (s *Store) RenderDocument(base *patch.Document, id string) *patch.Document {
	patches, ok := s.Get(id)
	if !ok {
		return base
	}
	doc, errs := ApplyPatchSet(base, patches)
	for _, err := range errs {
		s.logger.Warn("session patch not applied", "session_id", id, "error", err)
	}
	return doc
}

// ApplyPatchSet applies config values, then legacy values, then obstacles, then
// power-ups, then custom code.
// Empty arrays and empty custom code leave the base content in place.
func ApplyPatchSet(base *patch.Document, patches domain.SessionPatchSet) (*patch.Document, []error) {
	doc := base
	var errs []error

	keys := make([]string, 0, len(patches.Config))
	for k := range patches.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		out, err := doc.SetConfigValue(key, ConfigLiteral(patches.Config[key]))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc = out
	}

	legacyKeys := make([]string, 0, len(patches.Legacy))
	for k := range patches.Legacy {
		legacyKeys = append(legacyKeys, k)
	}
	sort.Strings(legacyKeys)
	for _, key := range legacyKeys {
		out, err := patch.ApplyLegacy(doc, key, patches.Legacy[key])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc = out
	}

	arrays := []struct {
		slot     patch.Slot
		elements []json.RawMessage
	}{
		{patch.SlotObstacles, patches.ObstacleTypes},
		{patch.SlotPowerUps, patches.PowerUps},
	}
	for _, a := range arrays {
		if len(a.elements) == 0 {
			continue
		}
		elements := make([]string, len(a.elements))
		for i, raw := range a.elements {
			elements[i] = string(raw)
		}
		out, err := doc.ReplaceElements(a.slot, elements)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc = out
	}

	if patches.CustomCode != "" {
		out, err := doc.ReplaceCustomCode(patches.CustomCode)
		if err != nil {
			errs = append(errs, err)
		} else {
			doc = out
		}
	}

	return doc, errs
}

// ConfigLiteral renders a session config value as it appears in the CONFIG block.
// Color strings are quoted; other strings are written raw.
func ConfigLiteral(v any) string {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "#") || strings.HasPrefix(val, "rgb") {
			return patch.StringLiteral(val)
		}
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}
