package models

import (
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Identity sources. Each source designates exactly one key-bearing field, so
// key derivation is a variant dispatch rather than field-priority sniffing.
const (
	SourceGuest    = "guest"    // device-local profile, keyed by fabricated userId
	SourcePassword = "password" // email/password account, keyed by email
	SourceOAuth    = "oauth"    // external provider, keyed by provider id
	SourceLegacy   = "legacy"   // raw storage key carried over from old installs
)

// Identity is the persisted user record. Which field derives the storage key
// depends on Source; unused fields stay empty.
type Identity struct {
	Source   string `json:"source"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	OAuthID  string `json:"oauthId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Picture  string `json:"picture,omitempty"`
	RawKey   string `json:"rawKey,omitempty"` // legacy identifier, used verbatim as key seed
}

// keyField returns the key-bearing value for this identity's source.
func (id Identity) keyField() string {
	switch id.Source {
	case SourceLegacy:
		return id.RawKey
	case SourcePassword:
		return id.Email
	case SourceOAuth:
		return id.OAuthID
	default:
		return id.UserID
	}
}

// StorageKey derives the stable per-user storage key, or "" when the identity
// carries no usable field. Deterministic: same fields, same key.
func (id Identity) StorageKey() string {
	field := strings.TrimSpace(id.keyField())
	if field == "" {
		return ""
	}
	return "shows_" + SanitizeKey(field)
}

// Anonymous reports whether the identity has no account-grade credential.
// Anonymous identities are eligible as migration sources on sign-in.
func (id Identity) Anonymous() bool {
	return id.Source == SourceGuest || id.Source == SourceLegacy
}

// RemoteSynced reports whether the identity's list is mirrored to the remote
// authoritative store. Only signed-in accounts sync remotely.
func (id Identity) RemoteSynced() bool {
	return id.Source == SourcePassword || id.Source == SourceOAuth
}

// SanitizeKey lowers a key seed into the [a-z0-9_] alphabet. Non-ASCII input
// is transliterated first so "Ümlaut" and "Umlaut" land on the same key.
func SanitizeKey(s string) string {
	s = strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Merge folds a previously stored identity into a newly signed-in one that
// resolves to the same storage key: fields the new identity leaves empty are
// kept from the old record, so cosmetic updates never lose known data.
func Merge(next, prev Identity) Identity {
	if next.Name == "" {
		next.Name = prev.Name
	}
	if next.Email == "" {
		next.Email = prev.Email
	}
	if next.OAuthID == "" {
		next.OAuthID = prev.OAuthID
	}
	if next.UserID == "" {
		next.UserID = prev.UserID
	}
	if next.Picture == "" {
		next.Picture = prev.Picture
	}
	return next
}
