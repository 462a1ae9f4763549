package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"meetsync/internal/api"
	"meetsync/internal/ipc"
	"meetsync/internal/queueaccess"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive transcription jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsFinalizeCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var phases []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transcription jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				jobs, err := access.Jobs(cmd.Context(), phases)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.MeetingTitle,
						formatStatusLabel(job.Phase),
						strconv.Itoa(len(job.Speakers)),
						job.CreatedAt,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Meeting", "Phase", "Speakers", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&phases, "phase", "p", nil, "Filter by phase (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job with its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				detail, err := access.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}
				renderJobDetail(cmd, detail)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderJobDetail(cmd *cobra.Command, detail *api.JobResponse) {
	out := cmd.OutOrStdout()
	job := detail.Job
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	fmt.Fprintf(out, "Meeting:  %s\n", job.MeetingTitle)
	if job.MeetingStart != "" {
		fmt.Fprintf(out, "Start:    %s\n", job.MeetingStart)
	}
	fmt.Fprintf(out, "Phase:    %s\n", formatStatusLabel(job.Phase))
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    %s\n", job.ErrorMessage)
	}
	if len(job.Speakers) > 0 {
		rows := make([][]string, 0, len(job.Speakers))
		for _, speaker := range job.Speakers {
			rows = append(rows, []string{speaker.Slot, speaker.Name, speaker.Source})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Slot", "Name", "Source"}, rows, nil))
		fmt.Fprintln(out)
	}
	if len(detail.Lines) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, strings.Join(detail.Lines, "\n"))
	}
}

func newJobsFinalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <job-id>",
		Short: "Accept the speaker names and publish the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobFinalize(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is now %s\n", args[0], formatStatusLabel(resp.Phase))
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Abort an unfinished transcription job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.JobCancel(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				return nil
			})
		},
	}
}
