// Package session tracks who is signed in on this device. It persists the credentials returned by
// the API and tells listeners, usually the cart engine, when the user logs in or out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/cartsync"
	"github.com/hanko-field/storefront/internal/platform/localstore"
)

const credentialsKey = "credentials"

var (
	// ErrNotSignedIn is returned when a token is requested while no user is signed in.
	ErrNotSignedIn = errors.New("session: not signed in")
	// ErrUserMismatch is returned when a token is requested for a user other than the signed-in one.
	ErrUserMismatch = errors.New("session: token requested for another user")
)

// Credentials are the persisted result of a signup or login.
type Credentials struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	IsAdmin   bool      `json:"isAdmin,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Listener receives session transitions.
type Listener func(ctx context.Context, t cartsync.Transition)

// Option customises a Manager.
type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// Manager holds the current credentials. It satisfies the HTTP client's TokenSource.
type Manager struct {
	store  localstore.Store
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *Credentials

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewManager builds a Manager persisting into store. Call Restore to load saved credentials.
func NewManager(store localstore.Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	m := &Manager{
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Restore loads persisted credentials. Expired or unreadable credentials are discarded and the
// session stays anonymous. No transition is emitted.
func (m *Manager) Restore(ctx context.Context) (cartsync.Identity, error) {
	data, ok, err := m.store.Get(ctx, credentialsKey)
	if err != nil {
		return cartsync.Anonymous(), fmt.Errorf("session: load credentials: %w", err)
	}
	if !ok {
		return cartsync.Anonymous(), nil
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil || strings.TrimSpace(creds.UserID) == "" {
		m.logger.Warn("discarding unreadable session credentials", zap.Error(err))
		m.discard(ctx)
		return cartsync.Anonymous(), nil
	}
	if m.expired(creds) {
		m.logger.Info("session credentials expired", zap.String("userId", creds.UserID))
		m.discard(ctx)
		return cartsync.Anonymous(), nil
	}

	m.mu.Lock()
	m.current = &creds
	m.mu.Unlock()
	return cartsync.Authenticated(creds.UserID), nil
}

// Identity returns the signed-in identity, or anonymous.
func (m *Manager) Identity() cartsync.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return cartsync.Anonymous()
	}
	return cartsync.Authenticated(m.current.UserID)
}

// Current returns a copy of the signed-in credentials.
func (m *Manager) Current() (Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Credentials{}, false
	}
	return *m.current, true
}

// Login persists creds and notifies listeners with a login transition. When a different user is
// still signed in, listeners first see that user log out.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	creds.UserID = strings.TrimSpace(creds.UserID)
	if creds.UserID == "" || strings.TrimSpace(creds.Token) == "" {
		return errors.New("session: user id and token are required")
	}

	m.mu.RLock()
	var previous string
	if m.current != nil {
		previous = m.current.UserID
	}
	m.mu.RUnlock()
	if previous != "" && previous != creds.UserID {
		m.logger.Info("ending previous session before login",
			zap.String("previousUserId", previous), zap.String("userId", creds.UserID))
		m.emit(ctx, cartsync.Transition{Kind: cartsync.TransitionLogout})
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, credentialsKey, data); err != nil {
		return fmt.Errorf("session: save credentials: %w", err)
	}

	m.mu.Lock()
	m.current = &creds
	m.mu.Unlock()

	m.logger.Info("session started", zap.String("userId", creds.UserID))
	m.emit(ctx, cartsync.Transition{Kind: cartsync.TransitionLogin, UserID: creds.UserID})
	return nil
}

// Refresh replaces the stored token for the signed-in user without emitting a transition.
func (m *Manager) Refresh(ctx context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNotSignedIn
	}
	next := *m.current
	next.Token = token
	next.ExpiresAt = expiresAt
	m.current = &next
	m.mu.Unlock()

	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, credentialsKey, data)
}

// Logout notifies listeners, then forgets the credentials. Listeners still see the departing
// user's token.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	signedIn := m.current != nil
	m.mu.RUnlock()

	if signedIn {
		m.emit(ctx, cartsync.Transition{Kind: cartsync.TransitionLogout})
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.store.Delete(ctx, credentialsKey); err != nil {
		return fmt.Errorf("session: delete credentials: %w", err)
	}
	m.logger.Info("session ended")
	return nil
}

// Token returns the bearer token for userID.
func (m *Manager) Token(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return "", ErrNotSignedIn
	}
	if m.current.UserID != strings.TrimSpace(userID) {
		return "", ErrUserMismatch
	}
	return m.current.Token, nil
}

// OnTransition registers fn. The returned func unregisters it.
func (m *Manager) OnTransition(fn Listener) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			delete(m.listeners, id)
			m.listenersMu.Unlock()
		})
	}
}

func (m *Manager) emit(ctx context.Context, t cartsync.Transition) {
	m.listenersMu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	fns := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	m.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ctx, t)
	}
}

func (m *Manager) expired(creds Credentials) bool {
	return !creds.ExpiresAt.IsZero() && !m.now().Before(creds.ExpiresAt)
}

func (m *Manager) discard(ctx context.Context) {
	if err := m.store.Delete(ctx, credentialsKey); err != nil {
		m.logger.Warn("session credentials delete failed", zap.Error(err))
	}
}
