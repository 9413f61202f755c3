package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/errors"
)

// maxShownImportErrors bounds the row errors listed for a failed import.
const maxShownImportErrors = 5

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import mappings from a CSV file (admin)",
		Long: `Upload a CSV file of mappings. The backend processes it as a job.

With --wait the job is polled until it completes or fails.

Examples:
  tirecode import mappings.csv
  tirecode import mappings.csv --wait
  tirecode import status 7f3c2a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetBool("wait")
			interval, _ := cmd.Flags().GetDuration("interval")

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			job, err := client.UploadCSV(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !wait {
				return a.render(cmd.OutOrStdout(), job, func(w io.Writer) error {
					fmt.Fprintf(w, "Uploaded %s: %d row(s), job %s\n", args[0], job.RowCount, job.JobID)
					_, err := fmt.Fprintf(w, "Follow it with 'tirecode import status %s'\n", job.JobID)
					return err
				})
			}

			progress := cmd.ErrOrStderr()
			status, err := client.WaitForImport(cmd.Context(), job.JobID, interval, func(s api.ImportStatus) {
				fmt.Fprintln(progress, importLine(s))
			})
			if err != nil {
				return err
			}
			if err := a.render(cmd.OutOrStdout(), status, func(w io.Writer) error {
				return writeImportStatus(w, status)
			}); err != nil {
				return err
			}
			return importError(status)
		},
	}

	cmd.Flags().Bool("wait", false, "wait for the import job to finish")
	cmd.Flags().Duration("interval", api.DefaultPollInterval, "status polling interval with --wait")

	cmd.AddCommand(newImportStatusCmd(a))
	return cmd
}

func newImportStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show an import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			status, err := client.ImportStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), status, func(w io.Writer) error {
				return writeImportStatus(w, status)
			})
		},
	}
}

func importLine(s api.ImportStatus) string {
	line := time.Now().Format("15:04:05") + " " + s.State
	if s.Progress != nil && s.Progress.Total > 0 {
		line += fmt.Sprintf(" %d/%d", s.Progress.Current, s.Progress.Total)
	}
	return line
}

func writeImportStatus(w io.Writer, s *api.ImportStatus) error {
	fmt.Fprintf(w, "Job %s: %s\n", s.ID, s.State)
	if s.Progress != nil {
		fmt.Fprintf(w, "Progress: %d/%d\n", s.Progress.Current, s.Progress.Total)
	}
	if s.Result != nil {
		fmt.Fprintf(w, "Processed: %d\n", s.Result.Processed)
		for _, e := range s.Result.Errors {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
	}
	return nil
}

// importError turns a failed job into a coded error carrying the first row
// errors as suggestions.
func importError(s *api.ImportStatus) error {
	if s.State != api.ImportFailed {
		return nil
	}

	err := errors.New(errors.ErrCodeRequest, "import job "+s.ID+" failed")
	if s.Result == nil || len(s.Result.Errors) == 0 {
		return err
	}

	shown := s.Result.Errors
	if len(shown) > maxShownImportErrors {
		shown = shown[:maxShownImportErrors]
	}
	return err.WithDetail("errors", strings.Join(s.Result.Errors, "; ")).WithSuggestions(shown...)
}
