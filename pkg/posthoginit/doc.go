// Package posthoginit provides PostHogInit, a component that initializes
// PostHog analytics after first paint.
//
// On mount the component schedules one deferred callback: through the host's
// idle scheduler when there is one (bounded by a 1500ms timeout), otherwise
// through a 600ms timer. When the callback fires it loads the consent
// initializer and calls InitializePostHogConsent off the loop. Unmounting
// before the callback fires turns it into a no-op; the scheduled handle
// itself is left alone.
//
// Failures are logged and swallowed. The component always renders nothing.
//
//	lazy := consent.NewLazy(func() (*consent.Manager, error) {
//	    return consent.NewManager(consent.WithAPIKey(key), consent.WithStore(store)), nil
//	})
//	inst := component.Mount(loop, posthoginit.New(posthoginit.WithConsent(lazy)))
//	defer inst.Unmount()
package posthoginit
