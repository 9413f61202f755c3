package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			info := version.GetInfo()

			return a.render(cmd.OutOrStdout(), info, func(w io.Writer) error {
				if verbose {
					_, err := fmt.Fprintln(w, info.String())
					return err
				}
				_, err := fmt.Fprintf(w, "tirecode %s\n", info.Short())
				return err
			})
		},
	}

	cmd.Flags().BoolP("verbose", "v", false, "show detailed version information")
	return cmd
}
