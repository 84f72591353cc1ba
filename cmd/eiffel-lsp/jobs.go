package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eiffel-lsp/internal/config"
	"eiffel-lsp/internal/jobs"
	"eiffel-lsp/internal/slogutil"
)

var (
	jobsFormat    string
	jobsLimit     int
	jobsStatus    string
	jobsOlderThan time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect repair jobs",
	Long: `List repair jobs recorded by the server and show the source a job
started from. Jobs survive the server only when jobs.dbPath is set.

Examples:
  eiffel-lsp jobs list
  eiffel-lsp jobs list --status=failed
  eiffel-lsp jobs snapshot <job-id>
  eiffel-lsp jobs prune --older-than 168h`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent repair jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one repair job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsSnapshotCmd = &cobra.Command{
	Use:   "snapshot <job-id>",
	Short: "Print the source a job started from",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsSnapshot,
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete finished jobs older than a cutoff",
	RunE:  runJobsPrune,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsFormat, "format", "human", "Output format (json, human)")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to return")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsPruneCmd.Flags().DurationVar(&jobsOlderThan, "older-than", 7*24*time.Hour, "Delete jobs that finished before this long ago")

	jobsCmd.AddCommand(jobsSnapshotCmd)
	jobsCmd.AddCommand(jobsPruneCmd)
	rootCmd.AddCommand(jobsCmd)
}

func openJobStore() (*jobs.Store, error) {
	root, err := workspaceRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(root, settingsPath)
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Jobs.DBPath
	if dbPath == "" {
		return nil, fmt.Errorf("jobs.dbPath is not set; jobs are kept in memory for the life of the server only")
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(root, dbPath)
	}
	logger := slogutil.NewLogger(os.Stderr, slogutil.LevelFromVerbosity(verbosity, false))
	return jobs.OpenStore(dbPath, logger)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := jobs.Filter{Limit: jobsLimit}
	if jobsStatus != "" {
		filter.Status = []jobs.Status{jobs.Status(jobsStatus)}
	}
	page, err := store.List(filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jobsFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tATTEMPT\tCREATED")
	for _, j := range page.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", j.ID, j.Target, j.Status, j.Attempt, j.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d of %d jobs\n", len(page.Jobs), page.Total)
	return nil
}

func getJob(store *jobs.Store, id string) (*jobs.Job, error) {
	job, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job, nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := getJob(store, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:     %s\n", job.ID)
	fmt.Fprintf(out, "Kind:    %s\n", job.Kind)
	fmt.Fprintf(out, "Target:  %s\n", job.Target())
	fmt.Fprintf(out, "Status:  %s\n", job.Status)
	fmt.Fprintf(out, "Attempt: %d\n", job.Attempt)
	if d := job.Duration(); d > 0 {
		fmt.Fprintf(out, "Took:    %s\n", d.Round(time.Millisecond))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:   %s\n", job.Error)
	}
	if job.Result != "" {
		fmt.Fprintf(out, "Result:  %s\n", job.Result)
	}
	return nil
}

func runJobsSnapshot(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := getJob(store, args[0])
	if err != nil {
		return err
	}
	src, err := job.Snapshot()
	if err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("job %s has no snapshot", job.ID)
	}
	_, err = cmd.OutOrStdout().Write(src)
	return err
}

func runJobsPrune(cmd *cobra.Command, args []string) error {
	store, err := openJobStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(time.Now().Add(-jobsOlderThan))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d jobs\n", n)
	return nil
}
