package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tandem/internal/core"
)

const (
	sessionTTL   = 30 * 24 * time.Hour
	magicLinkTTL = 15 * time.Minute
)

// LocalProvider keeps credentials and sessions in memory, which is enough
// for a two-person household behind a single server process.
type LocalProvider struct {
	mu         sync.Mutex
	nextID     int64
	byEmail    map[string]*account
	byAuthID   map[string]*account
	sessions   map[string]Session
	magicLinks map[string]magicLink
}

type magicLink struct {
	authID    string
	expiresAt time.Time
}

type account struct {
	authID string
	email  string
	hash   []byte
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		byEmail:    make(map[string]*account),
		byAuthID:   make(map[string]*account),
		sessions:   make(map[string]Session),
		magicLinks: make(map[string]magicLink),
	}
}

var _ Provider = (*LocalProvider)(nil)

func (p *LocalProvider) Register(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return "", fmt.Errorf("email %s already registered: %w", email, core.ErrConflict)
	}

	p.nextID++
	acct := &account{
		authID: fmt.Sprintf("local-%d", p.nextID),
		email:  email,
		hash:   hash,
	}
	p.byEmail[email] = acct
	p.byAuthID[acct.authID] = acct

	return acct.authID, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	acct, ok := p.byEmail[email]
	p.mu.Unlock()
	if !ok {
		return Session{}, fmt.Errorf("unknown email: %w", core.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return Session{}, fmt.Errorf("wrong password: %w", core.ErrUnauthenticated)
	}

	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:     token,
		AuthID:    acct.authID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}

	p.mu.Lock()
	p.sessions[token] = session
	p.mu.Unlock()

	return session, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	p.mu.Lock()
	delete(p.sessions, token)
	p.mu.Unlock()
	return nil
}

func (p *LocalProvider) Authenticate(ctx context.Context, token string) (string, error) {
	p.mu.Lock()
	session, ok := p.sessions[token]
	p.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("unknown session: %w", core.ErrUnauthenticated)
	}
	if time.Now().After(session.ExpiresAt) {
		p.mu.Lock()
		delete(p.sessions, token)
		p.mu.Unlock()
		return "", fmt.Errorf("session expired: %w", core.ErrUnauthenticated)
	}
	return session.AuthID, nil
}

func (p *LocalProvider) ChangePassword(ctx context.Context, authID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.byAuthID[authID]
	if !ok {
		return fmt.Errorf("identity %s: %w", authID, core.ErrNotFound)
	}
	acct.hash = hash
	return nil
}

func (p *LocalProvider) MagicLink(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.byEmail[email]
	if !ok {
		return "", fmt.Errorf("unknown email: %w", core.ErrNotFound)
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	p.magicLinks[token] = magicLink{
		authID:    acct.authID,
		expiresAt: time.Now().Add(magicLinkTTL),
	}
	return token, nil
}

func (p *LocalProvider) RedeemMagicLink(ctx context.Context, token string) (Session, error) {
	p.mu.Lock()
	link, ok := p.magicLinks[token]
	// Single use: the token dies on first redemption regardless of outcome.
	delete(p.magicLinks, token)
	p.mu.Unlock()

	if !ok {
		return Session{}, fmt.Errorf("unknown magic link: %w", core.ErrUnauthenticated)
	}
	if time.Now().After(link.expiresAt) {
		return Session{}, fmt.Errorf("magic link expired: %w", core.ErrUnauthenticated)
	}

	sessionToken, err := newToken()
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:     sessionToken,
		AuthID:    link.authID,
		ExpiresAt: time.Now().Add(sessionTTL),
	}

	p.mu.Lock()
	p.sessions[sessionToken] = session
	p.mu.Unlock()

	return session, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
