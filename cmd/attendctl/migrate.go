package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/attendsense/internal/config"
	"github.com/your-org/attendsense/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the attendance tables in Postgres",
	Long:  `Connects to the database named in the config file and creates any missing tables and indexes.`,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Schema is up to date.")
	return nil
}
