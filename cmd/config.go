package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vishalm/serp-forge/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(&cobra.Command{
		Use:         "validate",
		Short:       "Load and validate the configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsAnnotation: needsConfig},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := resolveConfig(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var save string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Long: `Print the effective configuration with secrets masked.

With --save the configuration is also written as YAML that --config can load.
Secrets are left empty in the saved file; supply them through the environment.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{needsAnnotation: needsConfig},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			out, err := configYAML(cfg.Masked())
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
			if save == "" {
				return nil
			}
			saved, err := configYAML(cfg.Redacted())
			if err != nil {
				return err
			}
			if err := os.WriteFile(save, saved, 0o600); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "configuration saved to %s\n", save)
			return nil
		},
	}
	cmd.Flags().StringVar(&save, "save", "", "also write the configuration, without secrets, to this YAML file")
	return cmd
}

func configYAML(cfg config.Config) ([]byte, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
