package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vango-dev/posthoginit/internal/config"
	"github.com/vango-dev/posthoginit/pkg/component"
	"github.com/vango-dev/posthoginit/pkg/consent"
	"github.com/vango-dev/posthoginit/pkg/host"
	"github.com/vango-dev/posthoginit/pkg/posthoginit"
)

// defaultPageTTL is how long a /session mount stays mounted.
const defaultPageTTL = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		configDir string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve consent, session and metrics endpoints",
		Long: `Start an HTTP server hosting a component loop.

Routes:
  GET  /healthz        liveness
  GET  /consent        current consent decision
  POST /consent        {"state":"granted"} records and applies a decision
  POST /session?ttl=5s mounts PostHogInit for one page view
  GET  /metrics        Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := newServer(cfg, logger, clock.New())
			if err != nil {
				return err
			}
			defer srv.Close()
			go func() {
				_ = srv.loop.Run(ctx)
			}()

			httpSrv := &http.Server{
				Addr:              cfg.Server.Address(),
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", httpSrv.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !stderrors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing posthoginit.json")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")

	return cmd
}

// server hosts one component loop shared by every request.
//
// It is single-tenant: one consent store and one Manager serve all
// visitors, so the decision carried by the latest request (POST /consent or
// a /session cookie) applies to every mounted session. A "denied" cookie
// closes the PostHog client for everyone.
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	loop     *host.Loop
	store    *consent.MemoryStore
	manager  *consent.Manager
	registry *prometheus.Registry
	deferred *posthoginit.PostHogInit
}

func newServer(cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*server, error) {
	def, err := consent.ParseState(cfg.Consent.Default)
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:      cfg,
		logger:   logger,
		loop:     host.NewLoop(host.WithClock(clk), host.WithLogger(logger)),
		store:    consent.NewMemoryStore(def),
		registry: prometheus.NewRegistry(),
	}
	s.manager = consent.NewManager(
		consent.WithAPIKey(cfg.PostHog.APIKey),
		consent.WithEndpoint(cfg.PostHog.Endpoint),
		consent.WithStore(s.store),
		consent.WithLogger(logger),
	)

	metrics := posthoginit.NewMetrics(posthoginit.WithRegistry(s.registry))
	opts := append(posthoginit.FromConfig(cfg.Defer),
		posthoginit.WithInitializer(s.manager),
		posthoginit.WithMetrics(metrics),
		posthoginit.WithLogger(logger),
	)
	s.deferred = posthoginit.New(opts...)
	return s, nil
}

// Handler returns the HTTP routes.
func (s *server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Mount("/consent", consent.Routes(s.manager, s.store, s.cfg.Consent.CookieName, s.logger))
	r.Post("/session", s.handleSession)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

// handleSession mounts PostHogInit for one page view. The request's consent
// cookie, when present, becomes the current decision.
func (s *server) handleSession(w http.ResponseWriter, r *http.Request) {
	ttl := defaultPageTTL
	if v := r.URL.Query().Get("ttl"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	if _, err := r.Cookie(s.cfg.Consent.CookieName); err == nil {
		state, err := consent.NewCookieStore(r, s.cfg.Consent.CookieName, consent.StatePending).Load(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = s.store.Save(r.Context(), state)
	}

	requestID := middleware.GetReqID(r.Context())
	logger := s.logger.With("request_id", requestID)
	s.loop.Dispatch(func() {
		inst := component.Mount(s.loop, s.deferred, component.WithLogger(logger))
		s.loop.SetTimeout(ttl, inst.Unmount)
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"mounted":   true,
		"ttl":       ttl.String(),
		"requestId": requestID,
	})
}

// Close stops the loop and flushes the PostHog client.
func (s *server) Close() {
	s.loop.Close()
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("posthog close failed", "error", err)
	}
}
