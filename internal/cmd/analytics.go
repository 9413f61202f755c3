package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/tirecode/internal/api"
)

func newAnalyticsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Search analytics (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	overview := &cobra.Command{
		Use:   "overview",
		Short: "Summarize searches of the last days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			o, err := client.Overview(cmd.Context(), days)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), o, func(w io.Writer) error {
				return writeOverview(w, o)
			})
		},
	}
	overview.Flags().Int("days", api.DefaultAnalyticsDays, "period in days")

	top := &cobra.Command{
		Use:   "top",
		Short: "List the most frequent searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			limit, _ := cmd.Flags().GetInt("limit")

			client, done, err := a.adminClient(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			searches, err := client.TopSearches(cmd.Context(), days, limit)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), searches, func(w io.Writer) error {
				if len(searches) == 0 {
					_, err := fmt.Fprintln(w, "No searches.")
					return err
				}
				rows := make([][]string, 0, len(searches))
				for _, s := range searches {
					rows = append(rows, []string{s.Query, s.QueryType, found(s.ResultFound), strconv.Itoa(s.Count)})
				}
				_, err := fmt.Fprintln(w, renderTable([]string{"Query", "Type", "Found", "Count"}, rows))
				return err
			})
		},
	}
	top.Flags().Int("days", api.DefaultAnalyticsDays, "period in days")
	top.Flags().Int("limit", api.DefaultTopLimit, "number of searches")

	cmd.AddCommand(overview, top)
	return cmd
}

func writeOverview(w io.Writer, o *api.Overview) error {
	fmt.Fprintf(w, "Searches:   %d\n", o.TotalSearches)
	fmt.Fprintf(w, "Successful: %d\n", o.SuccessfulSearches)
	fmt.Fprintf(w, "Failed:     %d\n", o.FailedSearches)
	fmt.Fprintf(w, "Success:    %s\n", o.SuccessRate)

	if len(o.SearchesByType) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(o.SearchesByType))
		for _, t := range o.SearchesByType {
			rows = append(rows, []string{t.Type, strconv.Itoa(t.Count)})
		}
		fmt.Fprintln(w, renderTable([]string{"Type", "Count"}, rows))
	}

	if len(o.RecentSearches) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(o.RecentSearches))
		for _, s := range o.RecentSearches {
			rows = append(rows, []string{s.CreatedAt, s.Query, s.QueryType, found(s.ResultFound)})
		}
		fmt.Fprintln(w, renderTable([]string{"When", "Query", "Type", "Found"}, rows))
	}
	return nil
}

func found(ok bool) string {
	if ok {
		return okStyle.Render("yes")
	}
	return failStyle.Render("no")
}
