// Package consent applies a recorded analytics consent decision to the
// PostHog client.
//
// A Store reports the visitor's decision (pending, granted or denied).
// Manager.InitializePostHogConsent reads it and creates, keeps or closes the
// PostHog client accordingly. The call is idempotent: repeating it with the
// same decision does nothing.
//
//	m := consent.NewManager(
//	    consent.WithAPIKey(cfg.PostHog.APIKey),
//	    consent.WithStore(consent.NewCookieStore(r, "posthog_consent", consent.StatePending)),
//	)
//	if err := m.InitializePostHogConsent(ctx); err != nil {
//	    logger.Error("consent", "error", err)
//	}
//
// Lazy defers building the Manager until first use, and Routes exposes the
// decision over HTTP.
package consent
