package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meetsync/internal/ipc"
)

func newSpeakersCommand(ctx *commandContext) *cobra.Command {
	speakersCmd := &cobra.Command{
		Use:   "speakers",
		Short: "Review speaker names before publication",
	}
	speakersCmd.AddCommand(&cobra.Command{
		Use:   "rename <job-id> <slot> <name...>",
		Short: "Set the published name for a speaker slot",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args[2:], " ")
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SpeakerRename(args[0], args[1], name)
				if err != nil {
					return err
				}
				for _, speaker := range resp.Job.Speakers {
					if strings.EqualFold(speaker.Slot, args[1]) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", speaker.Slot, speaker.Name)
						return nil
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[1])
				return nil
			})
		},
	})
	return speakersCmd
}
