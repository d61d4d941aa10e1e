// Package session tracks whether the client is signed in and tells subscribers
// when that changes.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/pazami01/sptb/tokenstore"
)

// State is the session state as seen by consumers.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// studentIDClaim is the access token claim carrying the student's account id.
const studentIDClaim = "user_id"

type subscriber struct {
	id int
	fn func(State)
}

// Session owns the token store on behalf of the rest of the client. Login, Logout
// and Expire are the only operations that change the observable state; silent
// access token replacement during refresh goes straight to the store and is not
// reported.
type Session struct {
	store tokenstore.Store
	log   zerolog.Logger

	mu     sync.Mutex
	state  State
	subs   []subscriber
	nextID int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New creates a Session over store. The initial state is optimistic: Authenticated
// when an access token is persisted, whether or not the server still accepts it.
func New(store tokenstore.Store, opts ...Option) (*Session, error) {
	s := &Session{store: store, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	pair, err := store.Get()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if pair.HasAccess() {
		s.state = Authenticated
	}
	return s, nil
}

// Store returns the underlying token store.
func (s *Session) Store() tokenstore.Store { return s.store }

// OnChange subscribes fn to state transitions. Handlers run synchronously, in
// subscription order, after the transition is recorded. The returned func unsubscribes.
func (s *Session) OnChange(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Authenticated reports whether the store holds an access token right now.
func (s *Session) Authenticated() bool {
	pair, err := s.store.Get()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read tokens")
		return false
	}
	return pair.HasAccess()
}

// State returns the last state reported to subscribers.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Login stores a freshly issued token pair and moves the session to Authenticated.
func (s *Session) Login(access, refresh string) error {
	if access == "" {
		return errors.New("login returned an empty access token")
	}
	if err := s.store.Set(access, refresh); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	s.log.Info().Int("student_id", s.StudentID()).Msg("logged in")
	s.transition(Authenticated)
	return nil
}

// Logout removes both tokens and moves the session to Anonymous.
func (s *Session) Logout() error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	s.log.Info().Msg("logged out")
	s.transition(Anonymous)
	return nil
}

// Expire is Logout triggered by the server rejecting the session. reason is
// logged only.
func (s *Session) Expire(reason error) error {
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	s.log.Warn().Err(reason).Msg("session expired, re-authentication required")
	s.transition(Anonymous)
	return nil
}

// Resync re-reads the store after an outside change, such as another process
// logging in or out. A pair holding only a refresh token is mid-refresh and keeps
// the current state.
func (s *Session) Resync() {
	pair, err := s.store.Get()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to re-read tokens")
		return
	}
	switch {
	case pair.HasAccess():
		s.transition(Authenticated)
	case !pair.HasRefresh():
		s.transition(Anonymous)
	}
}

// StudentID returns the account id embedded in the access token, or 0 when there
// is no token or it carries no id. The token signature is not checked; the server
// does that on every call.
func (s *Session) StudentID() int {
	pair, err := s.store.Get()
	if err != nil || !pair.HasAccess() {
		return 0
	}
	return StudentIDFromToken(pair.Access)
}

// StudentIDFromToken decodes the user_id claim of an unverified JWT.
func StudentIDFromToken(raw string) int {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return 0
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0
	}
	switch v := claims[studentIDClaim].(type) {
	case float64:
		return int(v)
	case string:
		var id int
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			return id
		}
	}
	return 0
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	if s.state == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	s.log.Debug().Stringer("state", to).Msg("session state changed")
	for _, sub := range subs {
		sub.fn(to)
	}
}
