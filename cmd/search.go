package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vishalm/serp-forge/internal/pipeline"
	"github.com/vishalm/serp-forge/internal/search"
	"github.com/vishalm/serp-forge/internal/serp"
)

func newSearchCmd(searchType serp.SearchType, use, short string) *cobra.Command {
	var (
		maxResults int
		noContent  bool
		noProxy    bool
		opts       search.Options
		out        outputFlags
	)

	cmd := &cobra.Command{
		Use:   use + " <query>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if !cmd.Flags().Changed("max-results") {
				maxResults = cfg.Scraping.MaxResults
			}

			res := appInstance.RunQuery(cmd.Context(), pipeline.Request{
				Query:            args[0],
				SearchType:       searchType,
				MaxResults:       maxResults,
				IncludeContent:   !noContent,
				UseProxyRotation: cfg.Proxy.Enabled && !noProxy,
				Options:          opts,
			})
			if err := out.write(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%s failed: %s", use, res.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 10, "number of results to request (1-100)")
	cmd.Flags().BoolVar(&noContent, "no-content", false, "skip fetching and extracting result pages")
	cmd.Flags().BoolVar(&noProxy, "no-proxy", false, "do not route page fetches through configured proxies")
	cmd.Flags().StringVar(&opts.Country, "country", "", "two-letter region code, e.g. us")
	cmd.Flags().StringVar(&opts.Language, "language", "", "interface language, e.g. en")
	cmd.Flags().StringVar(&opts.TimePeriod, "time-period", "", "restrict by age: hour, day, week, month, year")
	cmd.Flags().BoolVar(&opts.SafeSearch, "safe-search", false, "enable safe search")
	out.register(cmd)
	return cmd
}
