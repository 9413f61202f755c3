package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/tirecode/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change the configuration",
		Long: `Inspect and change the configuration.

Settings are read from $HOME/.tirecode/config.yaml (or --config), a .env
file in the working directory and TIRECODE_* environment variables, in
increasing order of precedence. NEXT_PUBLIC_API_URL is honored when api.url
is not set anywhere else.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.cfg.Marshal()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if a.output == "json" {
				var doc map[string]any
				if err := yaml.Unmarshal(data, &doc); err != nil {
					return err
				}
				return a.render(w, doc, nil)
			}
			if a.cfg.File != "" && a.output != "yaml" {
				fmt.Fprintf(w, "# %s\n", a.cfg.File)
			}
			_, err = w.Write(data)
			return err
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one setting to the config file",
		Long: `Write one setting to the config file, creating it when missing.

Keys:
  ` + strings.Join(config.Keys(), "\n  "),
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if err := config.Set(path, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
			return nil
		},
	}

	path := &cobra.Command{
		Use:         "path",
		Short:       "Print the config file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			info := map[string]any{"path": path, "exists": fileExists(path)}
			return a.render(cmd.OutOrStdout(), info, func(w io.Writer) error {
				if fileExists(path) {
					_, err := fmt.Fprintln(w, path)
					return err
				}
				_, err := fmt.Fprintf(w, "%s (not created yet)\n", path)
				return err
			})
		},
	}

	keys := &cobra.Command{
		Use:         "keys",
		Short:       "List the settable keys",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.render(cmd.OutOrStdout(), config.Keys(), func(w io.Writer) error {
				_, err := fmt.Fprintln(w, strings.Join(config.Keys(), "\n"))
				return err
			})
		},
	}

	cmd.AddCommand(show, set, path, keys)
	return cmd
}

// configPath returns --config or the default location.
func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
