package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/health"
)

func newDoctorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, token store, backend and session",
		Long: `Run diagnostics against everything a tirecode session depends on.

Checks include:
  • Configuration file and backend URL
  • Token store readability
  • Backend reachability
  • Stored session state

Examples:
  # Human readable report
  tirecode doctor

  # Machine readable report for CI
  tirecode doctor -o json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer h.close()

			report := a.doctor(h).Check(cmd.Context())
			a.logger.Debug("doctor finished", "status", report.Status.String())

			if err := a.render(cmd.OutOrStdout(), report, func(w io.Writer) error {
				return writeReport(w, report)
			}); err != nil {
				return err
			}
			return reportError(report)
		},
	}
	return cmd
}

// doctor assembles the checks for one session.
func (a *app) doctor(h *sessionHandle) *health.Manager {
	m := health.NewManager(a.cfg.API.Timeout)
	m.Add(health.Func("config", func(ctx context.Context) *health.Result {
		source := a.cfg.File
		if source == "" {
			source = "defaults"
		}
		return health.Healthy("loaded from "+source).
			WithDetail("api_url", a.cfg.API.URL).
			WithDetail("store", a.cfg.Store.Backend)
	}))
	m.Add(health.StoreChecker(h.store.Backend(), h.store.UserKey()))
	m.Add(health.BackendChecker(a.publicClient()))
	m.Add(health.SessionChecker(h.Manager))
	return m
}

func writeReport(w io.Writer, report health.Report) error {
	rows := make([][]string, 0, len(report.Checks))
	for _, r := range report.Checks {
		rows = append(rows, []string{r.Name, statusLabel(r.Status), r.Message, details(r.Details)})
	}
	fmt.Fprintln(w, renderTable([]string{"CHECK", "STATUS", "MESSAGE", "DETAILS"}, rows))
	_, err := fmt.Fprintf(w, "Overall: %s\n", statusLabel(report.Status))
	return err
}

func statusLabel(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return okStyle.Render(s.String())
	case health.StatusUnhealthy:
		return failStyle.Render(s.String())
	default:
		return s.String()
	}
}

func details(d map[string]string) string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+d[k])
	}
	return strings.Join(parts, " ")
}

// reportError fails the command when a check is unhealthy. Degraded checks
// only warn.
func reportError(report health.Report) error {
	if report.Status != health.StatusUnhealthy {
		return nil
	}
	var failed []string
	for _, r := range report.Checks {
		if r.Status == health.StatusUnhealthy {
			failed = append(failed, r.Name)
		}
	}
	return fmt.Errorf("unhealthy: %s", strings.Join(failed, ", "))
}
