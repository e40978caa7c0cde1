package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roblox-funapp/internal/config"
	"github.com/roblox-funapp/internal/domain"
)

// Upstream service names carried on domain.UpstreamError
const (
	ServiceUsernameLookup = "roblox-username-lookup"
	ServiceUserDetails    = "roblox-user-details"
	ServiceBadges         = "roblox-badges"
)

// Client talks to the public Roblox users and badges APIs and caches
// resolved profiles.
type Client struct {
	http         *http.Client
	usersURL     string
	badgesURL    string
	pageSize     int
	maxPages     int
	pageTimeout  time.Duration
	fetchTimeout time.Duration
	cache        *ProfileCache
	group        singleflight.Group
	logger       *slog.Logger
	now          func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces the wall clock used for account age
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a new Roblox client backed by cache
func NewClient(cfg *config.RobloxConfig, cache *ProfileCache, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: cfg.RequestTimeout},
		usersURL:     strings.TrimRight(cfg.UsersBaseURL, "/"),
		badgesURL:    strings.TrimRight(cfg.BadgesBaseURL, "/"),
		pageSize:     cfg.BadgePageSize,
		maxPages:     cfg.MaxBadgePages,
		pageTimeout:  cfg.BadgePageTimeout,
		fetchTimeout: 2*cfg.RequestTimeout + time.Duration(cfg.MaxBadgePages)*cfg.BadgePageTimeout,
		cache:        cache,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type usernameLookupRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernameLookupResponse struct {
	Data []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

// User is the subset of the Roblox user record the app reads
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	DisplayName      string    `json:"displayName"`
	Created          time.Time `json:"created"`
	HasVerifiedBadge bool      `json:"hasVerifiedBadge"`
	IsBanned         bool      `json:"isBanned"`
	Description      string    `json:"description"`
}

type badgePage struct {
	Data           []json.RawMessage `json:"data"`
	NextPageCursor *string           `json:"nextPageCursor"`
}

// Lookup returns the profile for username, serving from cache inside the TTL.
// Concurrent misses for the same username share one upstream resolution.
func (c *Client) Lookup(ctx context.Context, username string) (domain.PlayerProfile, error) {
	key := NormalizeUsername(username)
	if key == "" {
		return domain.PlayerProfile{}, domain.ErrInvalidRequest
	}

	if profile, ok := c.cache.Get(key); ok {
		c.logger.Debug("profile cache hit", "username", key)
		return profile.WithAge(c.now()), nil
	}

	// The shared fetch outlives any single caller; each caller still
	// gives up when its own context ends.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		profile, err := c.fetchProfile(fetchCtx, strings.TrimSpace(username))
		if err != nil {
			return domain.PlayerProfile{}, err
		}
		profile.NormalizedKey = key
		c.cache.Put(key, profile)
		return profile, nil
	})

	select {
	case <-ctx.Done():
		return domain.PlayerProfile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.PlayerProfile{}, res.Err
		}
		return res.Val.(domain.PlayerProfile).WithAge(c.now()), nil
	}
}

func (c *Client) fetchProfile(ctx context.Context, username string) (domain.PlayerProfile, error) {
	userID, err := c.ResolveUserID(ctx, username)
	if err != nil {
		return domain.PlayerProfile{}, err
	}

	details, err := c.UserDetails(ctx, userID)
	if err != nil {
		return domain.PlayerProfile{}, err
	}

	badges := c.CountBadges(ctx, userID)

	return domain.PlayerProfile{
		Username:         details.Name,
		DisplayName:      details.DisplayName,
		UserID:           details.ID,
		Created:          details.Created,
		HasVerifiedBadge: details.HasVerifiedBadge,
		IsBanned:         details.IsBanned,
		BadgeCount:       badges,
		Description:      details.Description,
	}, nil
}

// ResolveUserID maps a username to its numeric id through the batch lookup endpoint
func (c *Client) ResolveUserID(ctx context.Context, username string) (int64, error) {
	body, err := json.Marshal(usernameLookupRequest{Usernames: []string{username}})
	if err != nil {
		return 0, fmt.Errorf("encoding username lookup: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.usersURL+"/v1/usernames/users", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building username lookup: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out usernameLookupResponse
	if err := c.do(req, ServiceUsernameLookup, &out); err != nil {
		return 0, fmt.Errorf("resolving username: %w", err)
	}

	if len(out.Data) == 0 {
		return 0, domain.ErrUserNotFound
	}
	return out.Data[0].ID, nil
}

// UserDetails fetches the full user record
func (c *Client) UserDetails(ctx context.Context, userID int64) (*User, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%d", c.usersURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building user details request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	var out User
	if err := c.do(req, ServiceUserDetails, &out); err != nil {
		return nil, fmt.Errorf("getting user details: %w", err)
	}
	return &out, nil
}

// CountBadges scans the badge listing with a fixed budget: at most maxPages
// fetches, stopping early on a short page, a missing cursor, or any error or
// per-page timeout. Pages are never retried, so the result is a lower bound.
func (c *Client) CountBadges(ctx context.Context, userID int64) int {
	count := 0
	cursor := ""

	for page := 0; page < c.maxPages; page++ {
		n, next, err := c.fetchBadgePage(ctx, userID, cursor)
		if err != nil {
			c.logger.Warn("badge scan stopped", "user_id", userID, "page", page, "error", err)
			break
		}

		count += n
		if n < c.pageSize || next == "" {
			break
		}
		cursor = next
	}

	return count
}

func (c *Client) fetchBadgePage(ctx context.Context, userID int64, cursor string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := fmt.Sprintf("%s/v1/users/%d/badges?%s", c.badgesURL, userID, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", err
	}

	var page badgePage
	if err := c.do(req, ServiceBadges, &page); err != nil {
		return 0, "", err
	}

	next := ""
	if page.NextPageCursor != nil {
		next = *page.NextPageCursor
	}
	return len(page.Data), next, nil
}

func (c *Client) do(req *http.Request, service string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cause error
		if msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512)); len(bytes.TrimSpace(msg)) > 0 {
			cause = errors.New(string(bytes.TrimSpace(msg)))
		}
		return domain.NewUpstreamError(service, resp.StatusCode, cause)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
