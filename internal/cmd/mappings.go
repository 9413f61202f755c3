package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/tui"
)

func newMappingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		Aliases: []string{"mapping", "m"},
		Short:   "Manage tire code mappings (admin)",
		Long: `Manage tire code mappings.

A mapping links a public tire code to a tire size. All subcommands need an
active session, see 'tirecode auth login'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(
		newMappingsListCmd(a),
		newMappingsGetCmd(a),
		newMappingsCreateCmd(a),
		newMappingsUpdateCmd(a),
		newMappingsDeleteCmd(a),
	)
	return cmd
}

func newMappingsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all mappings",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			mappings, err := client.ListMappings(cmd.Context())
			if err != nil {
				return err
			}

			return a.render(cmd.OutOrStdout(), mappings, func(w io.Writer) error {
				if len(mappings) == 0 {
					_, err := fmt.Fprintln(w, "No mappings.")
					return err
				}
				rows := make([][]string, 0, len(mappings))
				for _, m := range mappings {
					rows = append(rows, []string{m.ID, m.CodePublic, m.SizeNormalized, m.SizeRaw})
				}
				fmt.Fprintln(w, renderTable([]string{"ID", "Code", "Size", "Raw"}, rows))
				_, err := fmt.Fprintf(w, "%d mapping(s)\n", len(mappings))
				return err
			})
		},
	}
}

func newMappingsGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			m, err := client.GetMapping(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), m, func(w io.Writer) error {
				return writeMapping(w, m)
			})
		},
	}
}

func newMappingsCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mapping",
		Long: `Create a mapping for a tire size. The backend assigns the public code.

Examples:
  tirecode mappings create --size 205/55R16
  tirecode mappings create --size 205/55R16 --load-index 91 --speed-index V`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.CreateMappingRequest{}
			req.SizeRaw, _ = cmd.Flags().GetString("size")
			if cmd.Flags().Changed("load-index") {
				li, _ := cmd.Flags().GetInt("load-index")
				req.LoadIndex = &li
			}
			req.SpeedIndex, _ = cmd.Flags().GetString("speed-index")

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			m, err := client.CreateMapping(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), m, func(w io.Writer) error {
				fmt.Fprintln(w, "Created mapping")
				return writeMapping(w, m)
			})
		},
	}

	cmd.Flags().String("size", "", "tire size, e.g. 205/55R16 (required)")
	cmd.Flags().Int("load-index", 0, "load index, e.g. 91")
	cmd.Flags().String("speed-index", "", "speed index letter, e.g. V")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func newMappingsUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a mapping",
		Long: `Change a mapping. Only the flags that are given are sent.

Examples:
  tirecode mappings update 42 --size 205/55R16
  tirecode mappings update 42 --speed-index H`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.UpdateMappingRequest{}
			if cmd.Flags().Changed("size") {
				size, _ := cmd.Flags().GetString("size")
				req.SizeRaw = &size
			}
			if cmd.Flags().Changed("load-index") {
				li, _ := cmd.Flags().GetInt("load-index")
				req.LoadIndex = &li
			}
			if cmd.Flags().Changed("speed-index") {
				si, _ := cmd.Flags().GetString("speed-index")
				req.SpeedIndex = &si
			}

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			m, err := client.UpdateMapping(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), m, func(w io.Writer) error {
				fmt.Fprintln(w, "Updated mapping")
				return writeMapping(w, m)
			})
		},
	}

	cmd.Flags().String("size", "", "new tire size")
	cmd.Flags().Int("load-index", 0, "new load index")
	cmd.Flags().String("speed-index", "", "new speed index letter")
	return cmd
}

func newMappingsDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a mapping",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				if !tui.ShouldPrompt() {
					return usageError("refusing to delete without --yes when not running interactively")
				}
				ok, err := tui.PromptForConfirmation(fmt.Sprintf("Delete mapping %s?", args[0]), false)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
					return nil
				}
			}

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			if err := client.DeleteMapping(cmd.Context(), args[0]); err != nil {
				return err
			}
			result := map[string]any{"id": args[0], "deleted": true}
			return a.render(cmd.OutOrStdout(), result, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted mapping %s\n", args[0])
				return err
			})
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}

func writeMapping(w io.Writer, m *api.Mapping) error {
	rows := [][2]string{
		{"ID", m.ID},
		{"Code", m.CodePublic},
		{"Size", m.SizeNormalized},
		{"Raw", m.SizeRaw},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "  %-5s %s\n", r[0]+":", r[1]); err != nil {
			return err
		}
	}
	return nil
}
