package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func conversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Inspect or reset conversation state",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <senderJid>",
		Short: "Print the stored state of one conversation",
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
			conv := a.Conversations.Get(cmd.Context(), device, args[0])
			if conv == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no conversation")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(conv)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <senderJid>",
		Short: "Forget a conversation; the next message starts fresh",
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
			if !a.Conversations.Clear(cmd.Context(), device, args[0]) {
				return fmt.Errorf("failed to clear conversation %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
			return nil
		},
	})
	return cmd
}
