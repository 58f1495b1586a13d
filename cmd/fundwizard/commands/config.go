package commands

import (
	"fundwizard/pkg/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redact(*cfg))
		},
	}
}

// redact blanks secrets before printing.
func redact(c config.Config) config.Config {
	if c.Drafts.Redis.Password != "" {
		c.Drafts.Redis.Password = redacted
	}
	if c.Views.Redis.Config.Password != "" {
		c.Views.Redis.Config.Password = redacted
	}
	if c.Drafts.Backing == config.BackingPostgres && c.Drafts.SQL.DSN != "" {
		c.Drafts.SQL.DSN = redacted
	}
	return c
}
