package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"whatsapp-autoreply/internal/handoff"
)

func handoffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handoff",
		Short: "List or end human takeovers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations waiting for a human",
		RunE: func(cmd *cobra.Command, _ []string) error {
			device, err := deviceFlag(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SENDER\tREASON\tSINCE")
			for _, conv := range a.Handoff.GetActiveHandoffs(cmd.Context(), device) {
				reason, since := "", ""
				if conv.HandoffReason != nil {
					reason = *conv.HandoffReason
				}
				if conv.HandoffAt != nil {
					since = conv.HandoffAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", conv.SenderJID, reason, since)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resume <senderJid>",
		Short: "Give a conversation back to the bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device, err := deviceFlag(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			res := a.Handoff.ResumeBot(cmd.Context(), device, args[0], handoff.ResumedByAdmin)
			if !res.Success {
				return fmt.Errorf("failed to resume %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resumed %s\n", args[0])
			return nil
		},
	})
	return cmd
}
