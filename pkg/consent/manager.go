package consent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"

	"github.com/vango-dev/posthoginit/internal/errors"
)

// OptInEvent is captured when consent changes to granted.
const OptInEvent = "$opt_in"

// Client is the part of posthog.Client the Manager uses.
type Client interface {
	Enqueue(msg posthog.Message) error
	Close() error
}

// ClientFactory creates a PostHog client.
type ClientFactory func(apiKey string, cfg posthog.Config) (Client, error)

// NewPostHogClient is the default ClientFactory.
func NewPostHogClient(apiKey string, cfg posthog.Config) (Client, error) {
	c, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Manager applies the stored consent decision to the PostHog client.
type Manager struct {
	store      Store
	factory    ClientFactory
	apiKey     string
	endpoint   string
	distinctID string
	logger     *slog.Logger

	mu      sync.Mutex
	client  Client
	applied State
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets where the decision is read from. Default: StaticStore(StatePending).
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.store = s
	}
}

// WithAPIKey sets the PostHog project API key.
func WithAPIKey(key string) Option {
	return func(m *Manager) {
		m.apiKey = key
	}
}

// WithEndpoint sets the PostHog ingestion endpoint.
func WithEndpoint(endpoint string) Option {
	return func(m *Manager) {
		m.endpoint = endpoint
	}
}

// WithDistinctID sets the distinct ID used for captured events.
// Default: a random UUID per Manager.
func WithDistinctID(id string) Option {
	return func(m *Manager) {
		m.distinctID = id
	}
}

// WithClientFactory replaces NewPostHogClient.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager. No client exists until consent is granted
// and InitializePostHogConsent runs.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		store:   StaticStore(StatePending),
		factory: NewPostHogClient,
		logger:  slog.Default(),
		applied: StatePending,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.distinctID == "" {
		m.distinctID = uuid.NewString()
	}
	return m
}

// InitializePostHogConsent reads the current decision and applies it:
// granted creates the client once and captures OptInEvent on the
// transition, denied closes any client, pending leaves things as they are.
func (m *Manager) InitializePostHogConsent(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state, err := m.store.Load(ctx)
	if err != nil {
		return errors.FromError(err, "E301")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case StateGranted:
		if m.client == nil {
			if m.apiKey == "" {
				return errors.New("E303").
					WithDetail("no PostHog API key configured").
					WithSuggestion("Set posthog.apiKey in posthoginit.json or the POSTHOG_API_KEY environment variable")
			}
			c, err := m.factory(m.apiKey, posthog.Config{Endpoint: m.endpoint})
			if err != nil {
				return errors.New("E303").Wrap(err)
			}
			m.client = c
		}
		if m.applied != StateGranted {
			if err := m.client.Enqueue(posthog.Capture{DistinctId: m.distinctID, Event: OptInEvent}); err != nil {
				m.logger.Warn("posthog opt-in capture failed", "error", err)
			}
		}
	case StateDenied:
		if m.client != nil {
			if err := m.client.Close(); err != nil {
				m.logger.Warn("posthog client close failed", "error", err)
			}
			m.client = nil
		}
	case StatePending:
	default:
		return errors.New("E302").WithDetail("store returned " + string(state))
	}

	if m.applied != state {
		m.logger.Info("posthog consent applied", "from", m.applied, "to", state)
	}
	m.applied = state
	return nil
}

// State returns the last applied decision.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// Initialized reports whether a PostHog client is active.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// DistinctID returns the ID events are captured under.
func (m *Manager) DistinctID() string {
	return m.distinctID
}

// Capture enqueues an event. It fails with E304 unless consent was granted
// and applied.
func (m *Manager) Capture(event string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return errors.New("E304")
	}
	return m.client.Enqueue(posthog.Capture{
		DistinctId: m.distinctID,
		Event:      event,
		Properties: posthog.Properties(props),
	})
}

// Close flushes and closes the client, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}
