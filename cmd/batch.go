package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vishalm/serp-forge/internal/batch"
	"github.com/vishalm/serp-forge/internal/serp"
)

func newBatchCmd() *cobra.Command {
	var (
		searchType string
		maxResults int
		sequential bool
		noContent  bool
		noProxy    bool
		out        outputFlags
	)

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run every query in a file, one per line",
		Long: `Run every query listed in a file. Blank lines and lines starting with #
are skipped, and duplicate queries run once. Queries run concurrently up to
batch.max_concurrent_queries unless --sequential is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open queries file: %w", err)
			}
			queries, err := batch.ReadQueries(f)
			_ = f.Close()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-results") {
				maxResults = cfg.Scraping.MaxResults
			}

			res := appInstance.RunBatch(cmd.Context(), batch.Request{
				Queries:            queries,
				SearchType:         serp.SearchType(searchType),
				MaxResultsPerQuery: maxResults,
				Concurrent:         !sequential,
				IncludeContent:     !noContent,
				UseProxyRotation:   cfg.Proxy.Enabled && !noProxy,
			})
			if err := out.write(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d queries succeeded, %d results, %d pages scraped in %.1fs\n",
				res.SuccessfulQueries, res.TotalQueries, res.TotalResults, res.TotalScraped, res.TotalExecutionTimeSeconds)
			if !res.Success {
				if res.ErrorMessage != "" {
					return fmt.Errorf("batch failed: %s", res.ErrorMessage)
				}
				return fmt.Errorf("batch failed: no query succeeded")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&searchType, "type", "t", string(serp.SearchWeb), "search type: web, news, images, videos")
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 10, "results per query (1-100)")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "run queries one at a time in file order")
	cmd.Flags().BoolVar(&noContent, "no-content", false, "skip fetching and extracting result pages")
	cmd.Flags().BoolVar(&noProxy, "no-proxy", false, "do not route page fetches through configured proxies")
	out.register(cmd)
	return cmd
}
