package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"meetsync/internal/api"
	"meetsync/internal/ipc"
	"meetsync/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect recordings and deferred uploads",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueOfflineCommand(ctx))
	queueCmd.AddCommand(newQueueFlushCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show recording and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				status, err := access.Counts(cmd.Context())
				if err != nil {
					return err
				}
				rows := buildCountRows(status)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Kind", "State", "Count"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				assets, err := access.Assets(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.AssetListResponse{Assets: assets})
				}
				if len(assets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recordings")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "File", "Status", "Meeting", "Job"},
					buildAssetRows(assets),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueOfflineCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "offline",
		Short: "List uploads and log entries waiting for connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				items, err := access.Offline(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.OfflineListResponse{Items: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing waiting for connectivity")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					state := "waiting"
					if item.Parked {
						state = "parked"
					}
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						formatStatusLabel(item.Kind),
						item.Ref,
						item.EnqueuedAt,
						state,
						item.LastError,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Reference", "Queued", "State", "Last Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newQueueFlushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Retry deferred uploads and log entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Flush()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Flushed %d video(s) and %d log entr%s\n",
					resp.Videos, resp.LogEntries, pluralSuffix(resp.LogEntries, "y", "ies"))
				return nil
			})
		},
	}
}

func buildAssetRows(assets []api.Asset) [][]string {
	rows := make([][]string, 0, len(assets))
	for _, asset := range assets {
		meeting := asset.MeetingTitle
		if meeting == "" && asset.Fallback {
			meeting = "(no matching event)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(asset.ID, 10),
			asset.FileName,
			formatStatusLabel(asset.Status),
			meeting,
			asset.JobID,
		})
	}
	return rows
}

func pluralSuffix(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
