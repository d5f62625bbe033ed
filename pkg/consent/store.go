package consent

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vango-dev/posthoginit/internal/errors"
)

// State is a recorded consent decision.
type State string

const (
	StatePending State = "pending"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// ParseState parses a consent value. The empty string is pending.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatePending, nil
	case "granted":
		return StateGranted, nil
	case "denied":
		return StateDenied, nil
	}
	return "", errors.New("E302").WithDetail("unknown consent value " + `"` + s + `"`)
}

// Store reports the current consent decision.
type Store interface {
	Load(ctx context.Context) (State, error)
}

// StaticStore always reports the same decision.
type StaticStore State

// Load implements Store.
func (s StaticStore) Load(context.Context) (State, error) {
	return State(s), nil
}

// MemoryStore holds a decision in memory. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore returns a MemoryStore holding initial.
func NewMemoryStore(initial State) *MemoryStore {
	return &MemoryStore{state: initial}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// Save records a new decision.
func (s *MemoryStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	return nil
}

// CookieStore reads the decision from a request cookie.
type CookieStore struct {
	request *http.Request
	name    string
	def     State
}

// NewCookieStore reads cookie name from r, reporting def when it is absent.
func NewCookieStore(r *http.Request, name string, def State) *CookieStore {
	return &CookieStore{request: r, name: name, def: def}
}

// Load implements Store.
func (s *CookieStore) Load(context.Context) (State, error) {
	c, err := s.request.Cookie(s.name)
	if stderrors.Is(err, http.ErrNoCookie) {
		return s.def, nil
	}
	if err != nil {
		return "", errors.New("E301").Wrap(err)
	}
	return ParseState(c.Value)
}

// CookieMaxAge is how long a recorded decision is kept by the browser.
const CookieMaxAge = 365 * 24 * time.Hour

// NewCookie returns the cookie that records state under name.
func NewCookie(name string, state State) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    string(state),
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		SameSite: http.SameSiteLaxMode,
	}
}
