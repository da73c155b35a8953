package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/signalbox/internal/models"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User directory commands (development databases)",
	}

	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var (
		configPath string
		id         uint
		username   string
		email      string
		role       string
		picture    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user to the directory",
		Long:  "Inserts a row into the users table. Production directories are owned by the ticket app; this is for local development.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			u := models.User{
				ID:             id,
				Username:       username,
				Email:          email,
				Role:           role,
				ProfilePicture: picture,
			}
			if err := gormDB.Create(&u).Error; err != nil {
				return fmt.Errorf("add user %s: %w", username, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added user %d (%s)\n", u.ID, u.Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Signalbox config file")
	cmd.Flags().UintVar(&id, "id", 0, "user ID (default: next available)")
	cmd.Flags().StringVar(&username, "username", "", "username (required)")
	cmd.Flags().StringVar(&email, "email", "", "email address for offline notifications")
	cmd.Flags().StringVar(&role, "role", "usuario", "role (admin, tecnico, usuario)")
	cmd.Flags().StringVar(&picture, "picture", "", "profile picture file name under uploads/")
	cmd.MarkFlagRequired("username")
	return cmd
}
