// Package tokenstore holds the access/refresh token pair of a client session.
package tokenstore

import "sync"

// Persisted key names of the two tokens.
const (
	KeyAccess  = "access_token"
	KeyRefresh = "refresh_token"
)

// Pair is the token pair held by a Store. An empty string means the token is absent.
type Pair struct {
	Access  string
	Refresh string
}

// HasAccess reports whether an access token is present.
func (p Pair) HasAccess() bool { return p.Access != "" }

// HasRefresh reports whether a refresh token is present.
func (p Pair) HasRefresh() bool { return p.Refresh != "" }

// Store persists the current token pair.
//
// Implementations must make Set atomic with respect to Get: a reader never observes
// the access token of a new login paired with the refresh token of an old one.
type Store interface {
	Get() (Pair, error)
	Set(access, refresh string) error
	// SetAccess replaces only the access token, leaving the refresh token untouched.
	SetAccess(access string) error
	// ClearAccess removes only the access token.
	ClearAccess() error
	Clear() error
}

// Memory is an in-process Store. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemory returns a Memory store seeded with the given tokens.
func NewMemory(access, refresh string) *Memory {
	return &Memory{pair: Pair{Access: access, Refresh: refresh}}
}

func (m *Memory) Get() (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair, nil
}

func (m *Memory) Set(access, refresh string) error {
	m.mu.Lock()
	m.pair = Pair{Access: access, Refresh: refresh}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetAccess(access string) error {
	m.mu.Lock()
	m.pair.Access = access
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClearAccess() error {
	return m.SetAccess("")
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.pair = Pair{}
	m.mu.Unlock()
	return nil
}
