package consent

import (
	"sync"

	"github.com/posthog/posthog-go"
)

type fakeClient struct {
	mu       sync.Mutex
	messages []posthog.Message
	closed   bool
}

func (c *fakeClient) Enqueue(msg posthog.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages {
		if capture, ok := m.(posthog.Capture); ok {
			out = append(out, capture.Event)
		}
	}
	return out
}

// fakeFactory records every client it creates.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	apiKey  string
	config  posthog.Config
	err     error
}

func (f *fakeFactory) New(apiKey string, cfg posthog.Config) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.apiKey = apiKey
	f.config = cfg
	c := &fakeClient{}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
