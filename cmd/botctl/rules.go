package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whatsapp-autoreply/internal/api"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Work with auto-reply rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check every stored rule of a device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			device, err := deviceFlag(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			rules, err := a.Rules.List(cmd.Context(), device)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for _, r := range rules {
				if err := api.ValidateRule(r.MatchType, r.Trigger, r.CooldownSeconds); err != nil {
					invalid++
					fmt.Fprintf(out, "rule %d %q: %v\n", r.ID, r.Name, err)
				}
			}
			fmt.Fprintf(out, "%d rules, %d invalid\n", len(rules), invalid)
			if invalid > 0 {
				return fmt.Errorf("%d invalid rules", invalid)
			}
			return nil
		},
	})
	return cmd
}
