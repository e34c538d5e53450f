// Package session keeps the signed-in session of a brewmap client and
// persists it between runs.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brewmap/brewmap/internal/domain"
)

// Event is a session state change.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// refreshSkew refreshes tokens slightly before they expire.
const refreshSkew = 30 * time.Second

// Store persists a session.
type Store interface {
	Load() (*domain.Session, error)
	Save(s *domain.Session) error
	Clear() error
}

// Refresher exchanges a refresh token for a new session.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, error)
}

// Listener observes session changes.
type Listener func(event Event, s *domain.Session)

// Manager holds the current session in memory.
type Manager struct {
	mu        sync.RWMutex
	store     Store
	refresher Refresher
	current   *domain.Session
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewManager creates a manager. refresher may be nil, in which case
// expired sessions are dropped instead of refreshed.
func NewManager(store Store, refresher Refresher) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// OnChange registers l and returns a function removing it.
func (m *Manager) OnChange(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Load rehydrates the session from the store, refreshing it when the
// access token has expired. It returns nil without error when nobody is
// signed in.
func (m *Manager) Load(ctx context.Context) (*domain.Session, error) {
	s, err := m.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		return nil, nil
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if s.Expired(m.now(), refreshSkew) {
		return m.refresh(ctx, s)
	}
	return s, nil
}

// Current returns the in-memory session, if any.
func (m *Manager) Current() *domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SignIn stores s as the current session.
func (m *Manager) SignIn(s *domain.Session) error {
	if s == nil || s.AccessToken == "" {
		return fmt.Errorf("session has no access token")
	}
	return m.set(EventSignedIn, s)
}

// SignOut forgets the current session.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.notify(EventSignedOut, prev)
	return nil
}

// AccessToken returns a valid access token, refreshing the session first
// when it is about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	s := m.Current()
	if s == nil {
		return "", ErrNotSignedIn
	}
	if s.Expired(m.now(), refreshSkew) {
		refreshed, err := m.refresh(ctx, s)
		if err != nil {
			return "", err
		}
		s = refreshed
	}
	return s.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	if m.refresher == nil || s.RefreshToken == "" {
		_ = m.SignOut()
		return nil, ErrSessionExpired
	}
	next, err := m.refresher.Refresh(ctx, s.RefreshToken)
	if err != nil {
		_ = m.SignOut()
		return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	// Keep what the token endpoint does not return.
	if next.Profile == nil {
		next.Profile = s.Profile
	}
	if !next.IsAdmin {
		next.IsAdmin = s.IsAdmin
	}
	if err := m.set(EventTokenRefreshed, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *Manager) set(event Event, s *domain.Session) error {
	if err := m.store.Save(s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.notify(event, s)
	return nil
}

func (m *Manager) notify(event Event, s *domain.Session) {
	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()
	for _, l := range listeners {
		l(event, s)
	}
}
