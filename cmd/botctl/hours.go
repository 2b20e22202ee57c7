package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whatsapp-autoreply/internal/businesshours"
)

func hoursCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hours",
		Short: "Work with business hours",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check a device schedule and report whether it is open now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			device, err := deviceFlag(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg, err := a.Configs.Get(cmd.Context(), device)
			if err != nil {
				return err
			}
			if err := businesshours.ValidateTimezone(cfg.Timezone); err != nil {
				return err
			}
			if err := businesshours.ValidateBusinessHours(cfg.BusinessHours); err != nil {
				return err
			}

			res := businesshours.Evaluate(cfg, time.Now())
			state := "closed"
			if res.IsBusinessHours {
				state = "open"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schedule ok: %d windows, timezone %s, currently %s\n",
				len(cfg.BusinessHours), cfg.Timezone, state)
			return nil
		},
	})
	return cmd
}
