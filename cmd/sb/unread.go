package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/signalbox/internal/identity"
	"github.com/zulandar/signalbox/internal/messaging"
)

func newUnreadCmd() *cobra.Command {
	var (
		configPath string
		userID     uint
	)

	cmd := &cobra.Command{
		Use:   "unread",
		Short: "Show a user's unread message counts by sender",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}

			counts, err := messaging.NewUnread(messaging.NewGormStore(gormDB)).Counts(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(counts) == 0 {
				fmt.Fprintln(out, "No unread messages.")
				return nil
			}

			senders := make([]uint, 0, len(counts))
			for id := range counts {
				senders = append(senders, id)
			}
			sort.Slice(senders, func(i, j int) bool { return senders[i] < senders[j] })

			dir := identity.NewGormDirectory(gormDB)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SENDER\tUSERNAME\tUNREAD")
			for _, id := range senders {
				name := "-"
				if ident, err := dir.Lookup(cmd.Context(), id); err == nil {
					name = ident.Username
				}
				fmt.Fprintf(w, "%d\t%s\t%d\n", id, name, counts[id])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Signalbox config file")
	cmd.Flags().UintVar(&userID, "user", 0, "user ID (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}
