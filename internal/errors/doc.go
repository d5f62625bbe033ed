// Package errors provides coded, structured errors for posthoginit.
//
// Every error carries a code (e.g., "E201") that maps to a registered
// template with a category, a short message and a longer detail. Callers
// attach context with the builder methods:
//
//	err := errors.New("E120").
//	    WithDetail("Failed to parse posthoginit.json: " + cause.Error()).
//	    WithSuggestion("Check that posthoginit.json is valid JSON")
//
// Errors wrap their cause, so errors.Is and errors.As from the standard
// library see through them.
//
// # Error Categories
//
//   - config: configuration file errors (E1xx)
//   - runtime: component lifecycle and initialization errors (E2xx)
//   - consent: consent storage and analytics client errors (E3xx)
//   - cli: command line errors (E4xx)
package errors
