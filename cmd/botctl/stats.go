package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print conversation and action counters for a device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			device, err := deviceFlag(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := a.Conversations.Stats(cmd.Context(), device)
			fmt.Fprintf(out, "conversations: total=%d idle=%d active_bot=%d handoff=%d\n",
				st.Total, st.Idle, st.ActiveBot, st.Handoff)

			counts, err := a.ActionLogs.CountByType(cmd.Context(), device)
			if err != nil {
				return err
			}
			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Fprintf(out, "%s: %d\n", t, counts[t])
			}
			return nil
		},
	}
}
