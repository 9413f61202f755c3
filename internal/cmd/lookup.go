package cmd

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/api"
	"github.com/felixgeelhaar/tirecode/internal/errors"
)

func newLookupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <query>...",
		Short: "Look up a tire code or size",
		Long: `Look up a tire code or size.

A query is either a numeric tire code (100) or a tire size (205/55R16),
optionally followed by a load and speed index ("205/55R16 91V"). Quote
queries that contain spaces.

Several queries, or --file with one query per line, are looked up in order
at most --rps per second.

Examples:
  tirecode lookup 100
  tirecode lookup "205/55R16 91V"
  tirecode lookup --file sizes.txt --rps 5`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			rps, _ := cmd.Flags().GetFloat64("rps")

			queries := args
			if file != "" {
				fromFile, err := readQueries(file)
				if err != nil {
					return err
				}
				queries = append(queries, fromFile...)
			}
			if len(queries) == 0 {
				return usageError("give at least one query or --file")
			}

			client := a.publicClient()
			if len(queries) == 1 {
				result, err := client.Lookup(cmd.Context(), queries[0])
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), result, func(w io.Writer) error {
					return writeLookup(w, api.ParseQuery(queries[0]), result)
				})
			}

			results := client.LookupBatch(cmd.Context(), queries, rps)
			if err := a.render(cmd.OutOrStdout(), batchViews(results), func(w io.Writer) error {
				_, err := fmt.Fprintln(w, renderBatch(results))
				return err
			}); err != nil {
				return err
			}
			return batchError(results)
		},
	}

	cmd.Flags().StringP("file", "f", "", "read queries from file, one per line")
	cmd.Flags().Float64("rps", 0, "maximum lookups per second for several queries (0 = unlimited)")

	cmd.AddCommand(newLookupSuggestCmd(a))
	return cmd
}

func newLookupSuggestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "List popular sizes starting with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suggestions, err := a.publicClient().Suggestions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), suggestions, func(w io.Writer) error {
				if len(suggestions) == 0 {
					_, err := fmt.Fprintln(w, "No suggestions.")
					return err
				}
				rows := make([][]string, 0, len(suggestions))
				for _, s := range suggestions {
					rows = append(rows, []string{s.SizeNormalized, strconv.Itoa(s.SearchCount)})
				}
				_, err := fmt.Fprintln(w, renderTable([]string{"Size", "Searches"}, rows))
				return err
			})
		},
	}
}

// readQueries reads one query per line, skipping blanks and # comments.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "cannot read "+path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "cannot read "+path, err)
	}
	return out, nil
}

func writeLookup(w io.Writer, q api.Query, r *api.LookupResult) error {
	if q.Type == api.QueryCode {
		fmt.Fprintf(w, "Code %s → %s\n", r.Code, r.SizeNormalized)
	} else {
		fmt.Fprintf(w, "Size %s → code %s\n", r.SizeNormalized, r.Code)
	}
	if r.SizeRaw != "" && r.SizeRaw != r.SizeNormalized {
		fmt.Fprintf(w, "Raw size: %s\n", r.SizeRaw)
	}
	if r.Variant != nil {
		fmt.Fprintf(w, "Variant: %d%s\n", r.Variant.LoadIndex, r.Variant.SpeedIndex)
	}
	if len(r.Variants) > 0 {
		labels := make([]string, 0, len(r.Variants))
		for _, v := range r.Variants {
			labels = append(labels, variantLabel(v))
		}
		fmt.Fprintf(w, "Variants: %s\n", strings.Join(labels, ", "))
	}
	if r.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", r.Warning)
	}
	return nil
}

func variantLabel(v api.Variant) string {
	var b strings.Builder
	if v.LoadIndex != nil {
		b.WriteString(strconv.Itoa(*v.LoadIndex))
	}
	if v.SpeedIndex != nil {
		b.WriteString(*v.SpeedIndex)
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// batchView is the machine-readable form of one batch result.
type batchView struct {
	Query  string            `json:"query" yaml:"query"`
	Result *api.LookupResult `json:"result,omitempty" yaml:"result,omitempty"`
	Error  string            `json:"error,omitempty" yaml:"error,omitempty"`
	Code   string            `json:"code,omitempty" yaml:"code,omitempty"`
}

func batchViews(results []api.BatchResult) []batchView {
	out := make([]batchView, 0, len(results))
	for _, r := range results {
		v := batchView{Query: r.Query, Result: r.Result}
		if r.Err != nil {
			v.Error = errorMessage(r.Err)
			v.Code = string(errors.CodeOf(r.Err))
		}
		out = append(out, v)
	}
	return out
}

func renderBatch(results []api.BatchResult) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			rows = append(rows, []string{r.Query, "", "", failStyle.Render(errorMessage(r.Err))})
			continue
		}
		rows = append(rows, []string{r.Query, r.Result.Code, r.Result.SizeNormalized, okStyle.Render("ok")})
	}
	return renderTable([]string{"Query", "Code", "Size", "Status"}, rows)
}

// batchError summarizes failed lookups. A canceled batch returns the
// cancellation error.
func batchError(results []api.BatchResult) error {
	failed := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if errors.CodeOf(r.Err) == "" {
			return r.Err
		}
		failed++
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d lookups failed", failed, len(results))
}

// errorMessage returns the message of a coded error without its cause and
// suggestions.
func errorMessage(err error) string {
	var te *errors.TirecodeError
	if stderrors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
