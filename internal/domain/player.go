package domain

import "time"

// PlayerProfile is the normalized view of a Roblox account.
type PlayerProfile struct {
	Username         string    `json:"username"`
	DisplayName      string    `json:"displayName"`
	UserID           int64     `json:"userId"`
	Created          time.Time `json:"created"`
	AccountAgeDays   int       `json:"accountAgeDays"`
	HasVerifiedBadge bool      `json:"hasVerifiedBadge"`
	IsBanned         bool      `json:"isBanned"`
	// BadgeCount is a lower bound; the badge scan stops at a fixed page budget.
	BadgeCount  int    `json:"badgeCount"`
	Description string `json:"description"`

	// NormalizedKey is the cache identity (trimmed, lowercased username).
	NormalizedKey string `json:"-"`
}

// AccountAgeDays returns whole days between created and now, truncated.
func AccountAgeDays(created, now time.Time) int {
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return int(now.Sub(created) / (24 * time.Hour))
}

// WithAge returns a copy of p with AccountAgeDays computed against now.
func (p PlayerProfile) WithAge(now time.Time) PlayerProfile {
	p.AccountAgeDays = AccountAgeDays(p.Created, now)
	return p
}
