// Package config provides configuration parsing for posthoginit.
//
// The configuration is stored in posthoginit.json. Every field is optional;
// missing fields take the defaults returned by New.
//
// # Configuration File Structure
//
//	{
//	  "defer": {
//	    "idleTimeout": "1500ms",
//	    "fallbackDelay": "600ms",
//	    "immediate": false,
//	    "disableIdle": false
//	  },
//	  "posthog": {
//	    "apiKey": "phc_...",
//	    "endpoint": "https://us.i.posthog.com"
//	  },
//	  "consent": {
//	    "cookieName": "posthog_consent",
//	    "default": "pending"
//	  },
//	  "server": {
//	    "host": "localhost",
//	    "port": 3000
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// The PostHog API key may also be supplied through the POSTHOG_API_KEY
// environment variable, which takes precedence over the file.
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Fallback:", cfg.Defer.FallbackDelayDuration())
package config
