package commands

import (
	"fundwizard/pkg/config"
	"fundwizard/pkg/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "fundwizard",
		Short:         "Collective fund wizards: drafts, submission and confirmation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := c.Validate(); err != nil {
				return err
			}
			l, err := logging.NewLogger(c.Logging)
			if err != nil {
				return err
			}
			logging.SetGlobal(l)
			cfg, logger = c, l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "fundwizard.yaml", "path to the YAML config file")

	root.AddCommand(serveCmd(), sweepCmd(), configCmd())

	err := root.Execute()
	if err != nil {
		logging.Global().Error("command failed", zap.Error(err))
	}
	return err
}
