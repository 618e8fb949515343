package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSearchCmd creates the subcommand that seeds the query todo list.
func newSearchCmd() *cobra.Command {
	var (
		term       string
		maxResults int
		out        string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the catalog and queue new UIDs for the query stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			found, added, err := appInstance.Search(cmd.Context(), term, maxResults, out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "found %d uids, queued %d new\n", found, added)
			return err
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "esearch term (default search.search_term)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum UIDs to request (default search.query_max)")
	cmd.Flags().StringVar(&out, "out", "", "list to merge UIDs into (default query.todofile)")
	return cmd
}
