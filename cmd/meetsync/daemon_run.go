package main

import (
	"github.com/spf13/cobra"

	"meetsync/internal/daemonrun"
)

func newDaemonRunCommands(ctx *commandContext) []*cobra.Command {
	runE := func(cmd *cobra.Command, _ []string) error {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateServices(); err != nil {
			return err
		}
		return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
			LogLevel: ctx.logLevel(),
		})
	}

	daemonCmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the meetsync daemon (internal)",
		Hidden:       true,
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE:         runE,
	}
	runCmd := &cobra.Command{
		Use:          "run",
		Short:        "Run the daemon in the foreground until interrupted",
		Annotations:  map[string]string{"skipConfigLoad": "true"},
		SilenceUsage: true,
		RunE:         runE,
	}
	return []*cobra.Command{daemonCmd, runCmd}
}
