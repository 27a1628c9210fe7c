package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shiptivity/api/internal/config"
	"shiptivity/api/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load clients into an empty database",
	Long: `Load the bundled sample clients, or the JSON array given by --file,
into the database. Nothing is written when clients already exist.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "", "JSON file of {name, description, status} objects")
}

func runSeed(cmd *cobra.Command, args []string) error {
	seeds, err := loadSeeds(seedFile)
	if err != nil {
		return err
	}

	cfg := config.FromViper(settings)
	dataStore, err := store.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer dataStore.Close()

	n, err := dataStore.Seed(context.Background(), seeds)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "clients already present, nothing seeded")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d clients\n", n)
	return nil
}

func loadSeeds(path string) ([]store.ClientSeed, error) {
	if path == "" {
		return store.DefaultSeeds()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seeds []store.ClientSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seeds, nil
}
