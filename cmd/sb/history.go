package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/models"
	"github.com/zulandar/signalbox/internal/notify"
	"github.com/zulandar/signalbox/internal/protocol"
)

// historyPreview bounds the content column.
const historyPreview = 60

func newHistoryCmd() *cobra.Command {
	var (
		configPath string
		userID     uint
		otherID    uint
		markRead   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation between two users",
		Long:  "Prints a conversation oldest first. Read flags are left alone unless --mark-read is given, which marks it read for --user as opening the chat would.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			store := messaging.NewGormStore(gormDB)

			var msgs []models.Message
			if markRead {
				msgs, err = store.ReadConversation(cmd.Context(), userID, otherID)
			} else {
				msgs, err = store.Conversation(cmd.Context(), userID, otherID)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTIME\tFROM\tTO\tREAD\tCONTENT")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%t\t%s\n",
					m.ID, protocol.FormatTime(m.CreatedAt), m.SenderID, m.ReceiverID, m.Read,
					notify.Preview(oneLine(m.Content), historyPreview))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Signalbox config file")
	cmd.Flags().UintVar(&userID, "user", 0, "user ID (required)")
	cmd.Flags().UintVar(&otherID, "with", 0, "other user ID (required)")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "mark messages from --with as read for --user")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("with")
	return cmd
}

// oneLine flattens message markup to a single line of text.
func oneLine(content string) string {
	return strings.Join(strings.Fields(messaging.PlainText(content)), " ")
}
