package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/vango-dev/posthoginit/internal/config"
	"github.com/vango-dev/posthoginit/internal/errors"
	"github.com/vango-dev/posthoginit/pkg/component"
	"github.com/vango-dev/posthoginit/pkg/consent"
	"github.com/vango-dev/posthoginit/pkg/host"
	"github.com/vango-dev/posthoginit/pkg/posthoginit"
)

func runCmd() *cobra.Command {
	var (
		configDir    string
		consentValue string
		unmount      bool
		unmountAfter time.Duration
		noIdle       bool
		immediate    bool
		wait         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mount PostHogInit once and report how it settled",
		Long: `Mount the PostHogInit component on a fresh host loop, wait for the
deferred callback, and print the outcome (initialized, skipped or failed).

Examples:
  posthoginit run --consent granted
  posthoginit run --no-idle --unmount-after 300ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configDir)
			if err != nil {
				return err
			}
			if noIdle {
				cfg.Defer.DisableIdle = true
			}
			if immediate {
				cfg.Defer.Immediate = true
			}
			if consentValue == "" {
				consentValue = cfg.Consent.Default
			}
			state, err := consent.ParseState(consentValue)
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			outcome, err := mountOnce(cmd.Context(), mountParams{
				cfg:          cfg,
				state:        state,
				unmount:      unmount,
				unmountAfter: unmountAfter,
				wait:         wait,
				logger:       logger,
				clock:        clock.New(),
			})
			if err != nil {
				return err
			}

			printf(cmd.OutOrStdout(), "consent: %s\noutcome: %s\n", state, outcome)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing posthoginit.json")
	cmd.Flags().StringVar(&consentValue, "consent", "", "Consent decision: pending, granted or denied (default from config)")
	cmd.Flags().BoolVar(&unmount, "unmount", false, "Unmount in the same loop turn as the mount")
	cmd.Flags().DurationVar(&unmountAfter, "unmount-after", 0, "Unmount after this delay (0 keeps the component mounted)")
	cmd.Flags().BoolVar(&noIdle, "no-idle", false, "Use the fallback timer instead of the idle callback")
	cmd.Flags().BoolVar(&immediate, "immediate", false, "Initialize on the next loop turn without deferral")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the component to settle")

	return cmd
}

type mountParams struct {
	cfg          *config.Config
	state        consent.State
	unmount      bool
	unmountAfter time.Duration
	wait         time.Duration
	logger       *slog.Logger
	clock        clock.Clock
}

// mountOnce mounts PostHogInit on a new loop and returns the first outcome.
func mountOnce(ctx context.Context, p mountParams) (posthoginit.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loop := host.NewLoop(host.WithClock(p.clock), host.WithLogger(p.logger))
	defer loop.Close()
	go func() {
		_ = loop.Run(ctx)
	}()

	lazy := consent.NewLazy(func() (*consent.Manager, error) {
		return consent.NewManager(
			consent.WithAPIKey(p.cfg.PostHog.APIKey),
			consent.WithEndpoint(p.cfg.PostHog.Endpoint),
			consent.WithStore(consent.StaticStore(p.state)),
			consent.WithLogger(p.logger),
		), nil
	})
	defer func() {
		if !lazy.Loaded() {
			return
		}
		if m, err := lazy.Get(context.Background()); err == nil {
			if err := m.Close(); err != nil {
				p.logger.Warn("posthog close failed", "error", err)
			}
		}
	}()

	settled := make(chan posthoginit.Outcome, 1)
	opts := append(posthoginit.FromConfig(p.cfg.Defer),
		posthoginit.WithConsent(lazy),
		posthoginit.WithLogger(p.logger),
		posthoginit.WithOnSettled(func(o posthoginit.Outcome) {
			select {
			case settled <- o:
			default:
			}
		}),
	)
	c := posthoginit.New(opts...)

	loop.Dispatch(func() {
		inst := component.Mount(loop, c,
			component.WithContext(ctx),
			component.WithLogger(p.logger))
		switch {
		case p.unmount:
			inst.Unmount()
		case p.unmountAfter > 0:
			loop.SetTimeout(p.unmountAfter, inst.Unmount)
		}
	})

	select {
	case o := <-settled:
		return o, nil
	case <-time.After(p.wait):
		return "", errors.New("E401").
			WithDetail("waited " + p.wait.String()).
			WithSuggestion("Increase --wait")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
