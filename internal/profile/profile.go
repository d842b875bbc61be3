// Package profile holds account profile metadata (nickname, avatar, contact
// details) refreshed from the server after each authentication.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	// Maximum lengths for text fields to prevent UI issues.
	maxNicknameLength = 100
	maxBioLength      = 500
	maxPhoneLength    = 32
)

// Profile represents the account card published by the server.
type Profile struct {
	AccountID string `json:"account_id"`
	Nickname  string `json:"nickname,omitempty"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// DisplayName returns the nickname, falling back to the local part of the account ID.
func (p *Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Nickname); name != "" {
		return name
	}
	local, _, _ := strings.Cut(p.AccountID, "@")
	return local
}

// Validate checks if the profile is safe to display.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.AccountID) == "" {
		return errors.New("account ID is required")
	}
	if err := validateTextInput(p.Nickname, "nickname", maxNicknameLength); err != nil {
		return err
	}
	if err := validateTextInput(p.Phone, "phone", maxPhoneLength); err != nil {
		return err
	}
	// Bio is multi-line, so only the length is checked
	if len(p.Bio) > maxBioLength {
		return fmt.Errorf("bio is too long (max %d characters)", maxBioLength)
	}
	return nil
}

// validateTextInput validates a text field for control characters and length.
func validateTextInput(value, fieldName string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, maxLength)
	}

	for i, r := range value {
		// Reject control characters (ASCII 0-31 and 127)
		if r < 32 || r == 127 {
			return fmt.Errorf("%s contains invalid control character at position %d", fieldName, i)
		}
	}

	return nil
}

// Cache keeps the most recently fetched profile.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	current *Profile
}

// NewCache creates an empty profile cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set stores a copy of the profile.
func (c *Cache) Set(p *Profile) {
	if p == nil {
		return
	}
	profileCopy := *p

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &profileCopy
}

// Get returns a copy of the cached profile, or nil if none was fetched yet.
func (c *Cache) Get() *Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	profileCopy := *c.current
	return &profileCopy
}

// Clear drops the cached profile.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
