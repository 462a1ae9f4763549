package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"meetsync/internal/ipc"
	"meetsync/internal/queue"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Register a recording for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			ext := strings.ToLower(filepath.Ext(info.Name()))
			if !cfg.ExtensionAllowed(ext) {
				return fmt.Errorf("unsupported file extension %q", ext)
			}

			out := cmd.OutOrStdout()
			client, dialErr := ipc.Dial(ctx.socketPath())
			if dialErr == nil {
				defer client.Close()
				resp, err := client.Add(absPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Registered %s as recording #%d (%s)\n", resp.Asset.FileName, resp.Asset.ID, resp.Asset.Status)
				return nil
			}

			// Daemon is down: record the asset so the next start picks it up.
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			asset, created, err := store.AddAsset(cmd.Context(), absPath)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(out, "%s is already registered as recording #%d (%s)\n", asset.FileName, asset.ID, asset.Status)
				return nil
			}
			fmt.Fprintf(out, "Registered %s as recording #%d; it will be processed when the daemon starts\n", asset.FileName, asset.ID)
			return nil
		},
	}
}
