package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shiptivity/api/internal/config"
	"shiptivity/api/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromViper(settings)
		dataStore, err := store.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer dataStore.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", dataStore.Dialect())
		return nil
	},
}
