package models

import (
	"errors"
	"time"

	dErrors "signup-api/pkg/domain-errors"
)

// DomainInfo is one permitted organisation email domain and its display name.
type DomainInfo struct {
	Domain  string `json:"domain"`
	OrgName string `json:"orgName"`
}

// DomainCacheEntry is an allowlist snapshot. It is replaced wholesale on refresh
// and never mutated after creation.
type DomainCacheEntry struct {
	Data      []DomainInfo
	Timestamp time.Time
}

// Age returns how old the snapshot is at now.
func (e *DomainCacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Contains reports whether domain (already lowercased) is in the snapshot.
func (e *DomainCacheEntry) Contains(domain string) bool {
	for _, d := range e.Data {
		if d.Domain == domain {
			return true
		}
	}
	return false
}

// BrokeredCredentials is a temporary authorization to act on the identity
// directory. Replaced, never mutated, when refreshed.
type BrokeredCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// ValidFor reports whether the credentials stay valid for longer than buffer.
func (c *BrokeredCredentials) ValidFor(now time.Time, buffer time.Duration) bool {
	return c != nil && c.Expiration.Sub(now) > buffer
}

// CredentialsResult tags credentials with whether this call performed a fresh
// exchange, so clients built from older credentials know to rebuild.
type CredentialsResult struct {
	Credentials *BrokeredCredentials
	Refreshed   bool
}

// ErrUserExists is the typed conflict raised when the directory already holds
// the identity, including when a concurrent signup won the race.
var ErrUserExists = dErrors.New(dErrors.CodeConflict, "user already exists")

// IsUserExists reports whether err is the typed conflict outcome.
func IsUserExists(err error) bool {
	return errors.Is(err, ErrUserExists)
}
