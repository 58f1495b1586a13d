package commands

import (
	"context"
	"fmt"
	"time"

	"fundwizard/pkg/cache/sqlstore"
	"fundwizard/pkg/config"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired drafts and receipts from a SQL backing",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := sweepOnce(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired rows\n", n)
			return nil
		},
	}
}

func sweepOnce(ctx context.Context, c *config.Config) (int64, error) {
	switch c.Drafts.Backing {
	case config.BackingSQLite, config.BackingPostgres:
	default:
		return 0, fmt.Errorf("sweep needs a sqlite or postgres backing, have %q", c.Drafts.Backing)
	}

	sc := c.Drafts.SQL
	sc.Dialect = sqlstore.Dialect(c.Drafts.Backing)
	store, err := sqlstore.Open(sc)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return store.Sweep(ctx)
}
