package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/vishalm/serp-forge/internal/app"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the serpforge version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsAnnotation: needsNothing},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "serpforge %s (%s %s/%s)\n", app.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
