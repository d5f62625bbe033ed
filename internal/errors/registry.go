package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (E100-E199)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "posthoginit.json could not be read or parsed.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "A duration field could not be parsed. Use Go duration syntax such as \"600ms\" or \"1.5s\".",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Port must be between 0 and 65535.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Invalid log setting",
		Detail:   "log.level must be one of debug, info, warn, error and log.format one of text, json.",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Configuration not found",
		Detail:   "No posthoginit.json was found.",
	},

	// ============================================
	// Runtime Errors (E200-E299)
	// ============================================

	"E201": {
		Category: CategoryRuntime,
		Message:  "PostHog initialization failed",
		Detail:   "InitializePostHogConsent returned an error. The failure is logged and not retried.",
	},
	"E202": {
		Category: CategoryRuntime,
		Message:  "PostHog loader failed",
		Detail:   "The consent initializer could not be loaded.",
	},
	"E203": {
		Category: CategoryRuntime,
		Message:  "PostHog initialization panicked",
		Detail:   "InitializePostHogConsent panicked. The panic was recovered and its value is wrapped in this error.",
	},
	"E205": {
		Category: CategoryRuntime,
		Message:  "Effect created outside component render",
		Detail:   "UseEffect must be called while the component renders.",
	},
	"E206": {
		Category: CategoryRuntime,
		Message:  "Owner disposed",
		Detail:   "The component owner has been disposed. The component was already unmounted.",
	},

	// ============================================
	// Consent Errors (E300-E399)
	// ============================================

	"E301": {
		Category: CategoryConsent,
		Message:  "Consent state unavailable",
		Detail:   "The consent store could not report the current consent decision.",
	},
	"E302": {
		Category: CategoryConsent,
		Message:  "Invalid consent state",
		Detail:   "Consent must be one of pending, granted or denied.",
	},
	"E303": {
		Category: CategoryConsent,
		Message:  "PostHog client creation failed",
		Detail:   "The PostHog client could not be created from the configured API key and endpoint.",
	},
	"E304": {
		Category: CategoryConsent,
		Message:  "PostHog not initialized",
		Detail:   "Analytics capture requires granted consent and a completed initialization.",
	},

	// ============================================
	// CLI Errors (E400-E499)
	// ============================================

	"E401": {
		Category: CategoryCLI,
		Message:  "Initialization did not settle",
		Detail:   "The deferred initializer did not settle before the wait deadline.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
