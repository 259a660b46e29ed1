package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the search and regulator caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache sizes and supported authorities",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"search":     env.Search.Stats(cmd.Context()),
			"regulatory": env.Regulatory.Stats(cmd.Context()),
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached search responses and regulator checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initVerifier(cmd.Context(), "sources")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Search.ClearCache(cmd.Context()); err != nil {
			return err
		}
		if err := env.Regulatory.ClearCache(cmd.Context()); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "caches cleared")
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
