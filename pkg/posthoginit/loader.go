package posthoginit

import (
	"context"
	stderrors "errors"

	"github.com/vango-dev/posthoginit/internal/errors"
	"github.com/vango-dev/posthoginit/pkg/consent"
)

// Initializer performs consent-aware analytics setup.
// Implementations must be idempotent.
type Initializer interface {
	InitializePostHogConsent(ctx context.Context) error
}

// InitializerFunc adapts a function to Initializer.
type InitializerFunc func(ctx context.Context) error

// InitializePostHogConsent implements Initializer.
func (f InitializerFunc) InitializePostHogConsent(ctx context.Context) error {
	return f(ctx)
}

// Loader resolves the Initializer when the deferred callback fires.
type Loader func(ctx context.Context) (Initializer, error)

// Static returns a Loader that always resolves to i.
func Static(i Initializer) Loader {
	return func(context.Context) (Initializer, error) {
		return i, nil
	}
}

// FromConsent returns a Loader that builds the consent Manager on first use.
func FromConsent(l *consent.Lazy) Loader {
	return func(ctx context.Context) (Initializer, error) {
		m, err := l.Get(ctx)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func missingLoader(context.Context) (Initializer, error) {
	return nil, errors.New("E202").Wrap(stderrors.New("no initializer configured")).
		WithSuggestion("Pass posthoginit.WithConsent or posthoginit.WithInitializer")
}
