package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/signalbox/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var (
		configPath string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the chat tables",
		Long:  "Migrates chat_messages. With --all the users table is migrated too, for standalone development databases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath, all)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Signalbox config file")
	cmd.Flags().BoolVar(&all, "all", false, "also migrate the users table")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string, all bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if all {
		if err := db.AutoMigrateAll(gormDB); err != nil {
			return err
		}
		fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))
		return nil
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.ChatModels()))
	return nil
}
