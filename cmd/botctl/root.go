package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNoDevice = errors.New("--device is required")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "botctl",
		Short:         "Administer the WhatsApp auto-reply bot",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringP("device", "d", "", "device id (Cloud API phone number id)")

	root.AddCommand(conversationCmd())
	root.AddCommand(handoffCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(hoursCmd())
	root.AddCommand(statsCmd())
	return root
}

func deviceFlag(cmd *cobra.Command) (string, error) {
	device, _ := cmd.Flags().GetString("device")
	if device == "" {
		return "", errNoDevice
	}
	return device, nil
}
