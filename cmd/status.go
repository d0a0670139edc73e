package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/bayesopt/internal/server"
)

var (
	serverURL  string
	httpClient = &http.Client{Timeout: 10 * time.Second}
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running job on the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, cancelCmd} {
		c.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
		rootCmd.AddCommand(c)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(w io.Writer, url string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Objective: %s (dim %d)\n", job.Objective, job.Dim)
		fmt.Fprintf(w, "  Evaluations: %d\n", job.Evaluations)
		if job.BestValue != nil {
			fmt.Fprintf(w, "  Best: %.6g\n", *job.BestValue)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// jobStatus mirrors the status endpoint's response.
type jobStatus struct {
	ID                string    `json:"id"`
	State             string    `json:"state"`
	Objective         string    `json:"objective"`
	Dim               int       `json:"dim"`
	Status            string    `json:"status"`
	BestValue         *float64  `json:"bestValue"`
	BestPoint         []float64 `json:"bestPoint"`
	Iterations        int       `json:"iterations"`
	Evaluations       int       `json:"evaluations"`
	Criterion         string    `json:"criterion"`
	Elapsed           float64   `json:"elapsed"`
	EvaluationsPerSec float64   `json:"evaluationsPerSec"`
	Error             string    `json:"error"`
}

func getJobStatus(w io.Writer, url, jobID string) error {
	resp, err := httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	if status.Status != "" {
		fmt.Fprintf(w, "Termination: %s\n", status.Status)
	}
	fmt.Fprintf(w, "Objective: %s (dim %d)\n", status.Objective, status.Dim)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Evaluations: %d (%d sequential)\n", status.Evaluations, status.Iterations)
	if status.Criterion != "" {
		fmt.Fprintf(w, "  Criterion: %s\n", status.Criterion)
	}
	if status.BestValue != nil {
		fmt.Fprintf(w, "  Best: %.6g at %s\n", *status.BestValue, formatPoint(status.BestPoint))
	}
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvaluationsPerSec > 0 {
		fmt.Fprintf(w, "  Throughput: %.1f evaluations/sec\n", status.EvaluationsPerSec)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	url := fmt.Sprintf("%s/api/v1/jobs/%s/cancel", serverURL, jobID)
	resp, err := httpClient.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
}
