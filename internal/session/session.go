package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"retailpos/terminal/internal/domain"
)

var (
	ErrNoToken        = errors.New("no authentication token found")
	ErrNoShop         = errors.New("no shop selected")
	ErrSessionExpired = errors.New("session expired, please log in again")
)

// Session is the authenticated context of the cashier using the terminal.
type Session struct {
	Token     string      `json:"-"`
	User      domain.User `json:"user"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
}

func (s Session) ShopID() (string, error) {
	if s.User.CurrentShop == nil || s.User.CurrentShop.ID == "" {
		return "", ErrNoShop
	}
	return s.User.CurrentShop.ID, nil
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// Manager owns the session for the lifetime of the process. It reads the
// store once in Load and writes only on login, shop switch and logout.
type Manager struct {
	store Store
	now   func() time.Time

	mu      sync.RWMutex
	current *Session
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func (m *Manager) Load(ctx context.Context) error {
	token, ok, err := m.store.Get(ctx, KeyAuthToken)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyAuthToken, err)
	}
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		m.set(nil)
		return nil
	}

	sess := Session{Token: token, ExpiresAt: tokenExpiry(token)}
	raw, ok, err := m.store.Get(ctx, KeyUserData)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyUserData, err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
			m.set(nil)
			return fmt.Errorf("decode %s: %w", KeyUserData, err)
		}
	}

	m.set(&sess)
	return nil
}

// Current returns the active session or ErrNoToken / ErrSessionExpired.
func (m *Manager) Current() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return Session{}, ErrNoToken
	}
	if m.current.Expired(m.now()) {
		return Session{}, ErrSessionExpired
	}
	return *m.current, nil
}

// Token returns the bearer token for outbound requests.
func (m *Manager) Token(_ context.Context) (string, error) {
	sess, err := m.Current()
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

func (m *Manager) Save(ctx context.Context, token string, user domain.User) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrNoToken
	}

	// A login whose user blob cannot be written is dropped entirely.
	if err := m.store.Set(ctx, KeyAuthToken, token); err != nil {
		return Session{}, fmt.Errorf("write %s: %w", KeyAuthToken, err)
	}
	if err := m.writeUser(ctx, user); err != nil {
		m.set(nil)
		_ = m.store.Delete(ctx, KeyAuthToken)
		return Session{}, err
	}

	sess := Session{Token: token, User: user, ExpiresAt: tokenExpiry(token)}
	m.set(&sess)
	return sess, nil
}

func (m *Manager) SelectShop(ctx context.Context, shop domain.ShopRef) (Session, error) {
	if strings.TrimSpace(shop.ID) == "" {
		return Session{}, ErrNoShop
	}
	sess, err := m.Current()
	if err != nil {
		return Session{}, err
	}

	sess.User.CurrentShop = &domain.ShopRef{ID: strings.TrimSpace(shop.ID), Name: shop.Name}
	if err := m.writeUser(ctx, sess.User); err != nil {
		return Session{}, err
	}
	m.set(&sess)
	return sess, nil
}

func (m *Manager) Clear(ctx context.Context) error {
	m.set(nil)
	if err := m.store.Delete(ctx, KeyAuthToken); err != nil {
		return fmt.Errorf("delete %s: %w", KeyAuthToken, err)
	}
	if err := m.store.Delete(ctx, KeyUserData); err != nil {
		return fmt.Errorf("delete %s: %w", KeyUserData, err)
	}
	return nil
}

func (m *Manager) writeUser(ctx context.Context, user domain.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, KeyUserData, string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", KeyUserData, err)
	}
	return nil
}

func (m *Manager) set(sess *Session) {
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
}

// tokenExpiry reads the exp claim of a JWT without verifying it; the
// backend remains the authority. Opaque tokens have no client-side expiry.
func tokenExpiry(token string) *time.Time {
	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	at := claims.ExpiresAt.Time
	return &at
}
