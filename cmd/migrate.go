package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", cfg.Store.Driver)
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
