package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"

	"nextup/internal/storage"
	"nextup/models"
)

var (
	ErrStoreRequired      = errors.New("identity store not provided")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const (
	currentIdentityKey = "identity_current"
	accountsKey        = "identity_accounts"
	sessionsKey        = "identity_sessions"

	sessionTTL = 24 * time.Hour
)

// account pairs a stored identity with its password hash.
type account struct {
	Identity     models.Identity `json:"identity"`
	PasswordHash string          `json:"passwordHash"`
}

// session is stored keyed by the token's sha256 so the store never holds a
// usable bearer token.
type session struct {
	UserKey string    `json:"userKey"`
	Expires time.Time `json:"expires"`
}

// Service resolves identities to storage keys, persists the current identity,
// and issues bearer sessions for remotely-synced accounts.
type Service struct {
	mu       sync.Mutex
	store    *storage.Store
	sessions map[string]session
}

// NewService creates an identity service persisting into the given store.
// Live sessions survive a restart: they are reloaded from the store, dropping
// any that expired in the meantime.
func NewService(store *storage.Store) (*Service, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &Service{store: store, sessions: make(map[string]session)}

	if _, err := store.Get(sessionsKey, &s.sessions); err != nil {
		log.Printf("[identity] failed to load sessions: %v", err)
	}
	now := time.Now()
	for key, sess := range s.sessions {
		if now.After(sess.Expires) {
			delete(s.sessions, key)
		}
	}
	return s, nil
}

// Current returns the active identity, creating and persisting a fresh guest
// on first launch.
func (s *Service) Current() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Service) currentLocked() models.Identity {
	var id models.Identity
	found, err := s.store.Get(currentIdentityKey, &id)
	if err != nil {
		log.Printf("[identity] failed to load current identity: %v", err)
	}
	if found && id.StorageKey() != "" {
		return id
	}
	return s.healLocked(id)
}

// ResolveKey derives the storage key for the identity. An identity with no
// key-bearing field is healed in place: a fabricated userId is assigned, the
// enriched identity becomes the new current identity, and its key is
// returned. Resolution therefore never fails for the active user.
func (s *Service) ResolveKey(id models.Identity) string {
	if key := id.StorageKey(); key != "" {
		return key
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healLocked(id).StorageKey()
}

func (s *Service) healLocked(id models.Identity) models.Identity {
	if id.Source == "" {
		id.Source = models.SourceGuest
	}
	if id.StorageKey() == "" {
		id.UserID = uuid.NewString()
		id.Source = models.SourceGuest
	}
	if err := s.store.Put(currentIdentityKey, id); err != nil {
		log.Printf("[identity] failed to persist healed identity: %v", err)
	}
	return id
}

// SignInResult carries the outcome of a successful sign-in. Previous is set
// to the replaced identity when it was anonymous and resolved to a different
// key, i.e. when its list should be merged into the new account's list.
type SignInResult struct {
	Identity models.Identity
	Token    string
	Previous *models.Identity
}

// SignUp registers a new password account and signs it in.
func (s *Service) SignUp(name, email, pass string) (SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return SignInResult{}, ErrEmailRequired
	}
	if pass == "" {
		return SignInResult{}, ErrPasswordRequired
	}
	if len(pass) < 8 {
		return SignInResult{}, ErrPasswordTooShort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.loadAccountsLocked()
	slot := models.SanitizeKey(email)
	if _, exists := accounts[slot]; exists {
		return SignInResult{}, ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return SignInResult{}, fmt.Errorf("hash password: %w", err)
	}

	id := models.Identity{
		Source: models.SourcePassword,
		Name:   strings.TrimSpace(name),
		Email:  email,
	}
	accounts[slot] = account{Identity: id, PasswordHash: string(hash)}
	if err := s.store.Put(accountsKey, accounts); err != nil {
		return SignInResult{}, fmt.Errorf("persist accounts: %w", err)
	}

	return s.adoptLocked(id)
}

// SignIn authenticates a password account and makes it the current identity.
func (s *Service) SignIn(email, pass string) (SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return SignInResult{}, ErrEmailRequired
	}
	if pass == "" {
		return SignInResult{}, ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.loadAccountsLocked()
	acct, ok := accounts[models.SanitizeKey(email)]
	if !ok {
		return SignInResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(pass)); err != nil {
		return SignInResult{}, ErrInvalidCredentials
	}

	return s.adoptLocked(acct.Identity)
}

// adoptLocked installs next as the current identity, merging fields when it
// resolves to the same key as the replaced identity and flagging list
// migration when it does not.
func (s *Service) adoptLocked(next models.Identity) (SignInResult, error) {
	prev := s.currentLocked()

	var migrateFrom *models.Identity
	if prev.StorageKey() == next.StorageKey() {
		next = models.Merge(next, prev)
	} else if prev.Anonymous() && prev.StorageKey() != "" {
		prevCopy := prev
		migrateFrom = &prevCopy
	}

	if err := s.store.Put(currentIdentityKey, next); err != nil {
		return SignInResult{}, fmt.Errorf("persist identity: %w", err)
	}

	token, err := s.issueSessionLocked(next)
	if err != nil {
		return SignInResult{}, err
	}

	return SignInResult{Identity: next, Token: token, Previous: migrateFrom}, nil
}

// SignOut discards the current identity and sessions, re-creating a fresh
// guest.
func (s *Service) SignOut() models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]session)
	s.persistSessionsLocked()
	guest := models.Identity{Source: models.SourceGuest, UserID: uuid.NewString()}
	if err := s.store.Put(currentIdentityKey, guest); err != nil {
		log.Printf("[identity] failed to persist guest identity: %v", err)
	}
	return guest
}

func (s *Service) issueSessionLocked(id models.Identity) (string, error) {
	if !id.RemoteSynced() {
		return "", nil
	}
	token, err := password.Generate(48, 16, 0, false, true)
	if err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	s.sessions[hashToken(token)] = session{UserKey: id.StorageKey(), Expires: time.Now().Add(sessionTTL)}
	s.persistSessionsLocked()
	return token, nil
}

// persistSessionsLocked mirrors the session map beside the current identity.
// Failures are logged; the in-memory sessions stay valid either way.
func (s *Service) persistSessionsLocked() {
	if err := s.store.Put(sessionsKey, s.sessions); err != nil {
		log.Printf("[identity] failed to persist sessions: %v", err)
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateToken reports whether the bearer token names a live session and
// returns the storage key it is bound to.
func (s *Service) ValidateToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	sess, ok := s.sessions[key]
	if !ok {
		return "", false
	}
	if time.Now().After(sess.Expires) {
		delete(s.sessions, key)
		s.persistSessionsLocked()
		return "", false
	}
	return sess.UserKey, true
}

func (s *Service) loadAccountsLocked() map[string]account {
	accounts := make(map[string]account)
	if _, err := s.store.Get(accountsKey, &accounts); err != nil {
		log.Printf("[identity] failed to load accounts: %v", err)
	}
	return accounts
}
