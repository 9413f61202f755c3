package cmd

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/errors"
	"github.com/felixgeelhaar/tirecode/internal/health"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
	"github.com/felixgeelhaar/tirecode/internal/session"
	"github.com/felixgeelhaar/tirecode/internal/tokenstore"
	"github.com/felixgeelhaar/tirecode/internal/tui"
)

func newAuthCmd(a *app) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the admin session",
		Long: `Manage the admin session.

The session is kept in the configured token store (by default
$HOME/.tirecode/credentials.json) and refreshed before the access token
expires.

Examples:
  tirecode auth login --email admin@example.com
  tirecode auth status
  tirecode auth watch
  tirecode auth logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	authCmd.AddCommand(
		newAuthLoginCmd(a),
		newAuthLogoutCmd(a),
		newAuthStatusCmd(a),
		newAuthRefreshCmd(a),
		newAuthWatchCmd(a),
	)
	return authCmd
}

func newAuthLoginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password.

Missing credentials are prompted for when running in a terminal. In CI both
--email and --password are required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			creds := tui.Credentials{Email: strings.TrimSpace(email), Password: password}
			if creds.Email == "" || creds.Password == "" {
				if !tui.ShouldPrompt() {
					return usageError("--email and --password are required when not running interactively")
				}
				var err error
				if creds, err = tui.PromptCredentials(creds); err != nil {
					return err
				}
			}

			h, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer h.close()

			user, err := h.Login(cmd.Context(), creds.Email, creds.Password)
			if err != nil {
				return err
			}

			return a.render(cmd.OutOrStdout(), user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged in as %s\n", user.Email)
				return err
			})
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")
	return cmd
}

func newAuthLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer h.close()

			before := h.Snapshot()
			h.Logout(cmd.Context())

			if before.State != session.StateAuthenticated {
				return a.render(cmd.OutOrStdout(), statusViewOf(h.Snapshot(), ""), func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Not logged in.")
					return err
				})
			}
			return a.render(cmd.OutOrStdout(), statusViewOf(h.Snapshot(), ""), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Logged out %s\n", before.User.Email)
				return err
			})
		},
	}
}

// statusView is the machine-readable form of 'auth status'.
type statusView struct {
	State         string           `json:"state" yaml:"state"`
	Authenticated bool             `json:"authenticated" yaml:"authenticated"`
	Confirmed     bool             `json:"confirmed" yaml:"confirmed"`
	User          *tokenstore.User `json:"user,omitempty" yaml:"user,omitempty"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	NextRefresh   *time.Time       `json:"nextRefresh,omitempty" yaml:"nextRefresh,omitempty"`
}

func statusViewOf(snap session.Snapshot, accessToken string) statusView {
	v := statusView{
		State:         snap.State.String(),
		Authenticated: snap.IsAuthenticated,
		Confirmed:     snap.Confirmed,
		User:          snap.User,
	}
	if claims := session.ParseClaims(accessToken); claims.Known && !claims.ExpiresAt.IsZero() {
		at := claims.ExpiresAt
		v.ExpiresAt = &at
	}
	if !snap.NextRefresh.IsZero() {
		at := snap.NextRefresh
		v.NextRefresh = &at
	}
	return v
}

func newAuthStatusCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Long: `Show the current session.

A stored session is confirmed against the backend first. With --check the
command fails when no session is active, which is useful in scripts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			check, _ := cmd.Flags().GetBool("check")

			h, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer h.close()

			snap := h.Snapshot()
			token, _ := h.store.AccessToken()
			view := statusViewOf(snap, token)

			err = a.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
				now := time.Now()
				fmt.Fprintln(w, tui.StatusCard(snap, now))
				if view.ExpiresAt != nil {
					fmt.Fprintf(w, "Access token expires %s\n", tui.Countdown(*view.ExpiresAt, now))
				}
				return nil
			})
			if err != nil {
				return err
			}

			if check && !snap.IsAuthenticated {
				return errors.NewNotAuthenticatedError()
			}
			return nil
		},
	}

	cmd.Flags().Bool("check", false, "exit non-zero when not signed in")
	return cmd
}

func newAuthRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer h.close()

			if err := h.Refresh(cmd.Context()); err != nil {
				return err
			}

			snap := h.Snapshot()
			token, _ := h.store.AccessToken()
			return a.render(cmd.OutOrStdout(), statusViewOf(snap, token), func(w io.Writer) error {
				if snap.NextRefresh.IsZero() {
					_, err := fmt.Fprintln(w, "Session refreshed")
					return err
				}
				_, err := fmt.Fprintf(w, "Session refreshed, next refresh %s\n", tui.Countdown(snap.NextRefresh, time.Now()))
				return err
			})
		},
	}
}

func newAuthWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and show its state",
		Long: `Keep the session alive and show its state.

The access token is refreshed in the background until the command is
interrupted. In a terminal an interactive view is shown; with --no-tui (or
when output is not a terminal) every state change is printed as a line.

--metrics-addr serves Prometheus metrics on /metrics, a liveness probe on
/healthz and a readiness report on /readyz while watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noTUI, _ := cmd.Flags().GetBool("no-tui")
			addr, _ := cmd.Flags().GetString("metrics-addr")

			ctx := cmd.Context()
			h, err := a.openSession(ctx)
			if err != nil {
				return err
			}
			defer h.close()

			if addr != "" {
				stop, err := a.serveMetrics(addr, h)
				if err != nil {
					return err
				}
				defer stop()
			}

			if noTUI || !tui.IsInteractive() {
				return watchLines(ctx, cmd.OutOrStdout(), h.Manager)
			}
			if err := tui.Run(ctx, h.Manager); err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-tui", false, "print state changes as plain lines")
	cmd.Flags().String("metrics-addr", "", "serve metrics on this address, e.g. :9090")
	return cmd
}

// watchLines prints one line per snapshot until ctx ends or the manager
// closes.
func watchLines(ctx context.Context, w io.Writer, m *session.Manager) error {
	updates, cancel := m.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprintln(w, snapshotLine(snap, time.Now()))
		}
	}
}

func snapshotLine(snap session.Snapshot, now time.Time) string {
	parts := []string{now.Format(time.RFC3339), "state=" + snap.State.String()}
	if snap.User != nil {
		parts = append(parts, "user="+snap.User.Email)
	}
	if snap.IsAuthenticated && !snap.Confirmed {
		parts = append(parts, "unconfirmed")
	}
	if !snap.NextRefresh.IsZero() {
		parts = append(parts, "next_refresh="+snap.NextRefresh.Format(time.RFC3339))
	}
	return strings.Join(parts, " ")
}

// metricsRouter exposes /metrics, /healthz and /readyz. /healthz answers 503
// while the session is anonymous, /readyz while a check is unhealthy.
func metricsRouter(m *session.Manager, ready *health.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()
		if !snap.IsAuthenticated {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, snap.State.String())
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := ready.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == health.StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
	return r
}

// readiness checks what a long-running watch depends on locally.
func readiness(h *sessionHandle) *health.Manager {
	m := health.NewManager(0)
	m.Add(health.StoreChecker(h.store.Backend(), h.store.UserKey()))
	m.Add(health.SessionChecker(h.Manager))
	return m
}

func (a *app) serveMetrics(addr string, h *sessionHandle) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "cannot listen on "+addr, err).
			WithSuggestion("Choose a free address with --metrics-addr")
	}

	srv := &http.Server{Handler: metricsRouter(h.Manager, readiness(h)), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "error", err.Error())
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), idleTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
