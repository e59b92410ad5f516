package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scoreflow/scoreflow/pkg/models"
)

var (
	jobsStatusFilter string
	jobsTenantFilter string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Long:  `List jobs on the server, optionally filtered by status or tenant.`,
	RunE:  runJobsList,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Get one job with its result",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)

	jobsListCmd.Flags().StringVar(&jobsStatusFilter, "status", "", "filter by status (pending, processing, completed, failed)")
	jobsListCmd.Flags().StringVar(&jobsTenantFilter, "tenant", "", "filter by tenant ID")
}

type jobsListResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Count int          `json:"count"`
}

func fetchJSON(path string, out interface{}) error {
	httpReq, err := CreateAuthenticatedRequest("GET", GetServerURL()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := GetHTTPClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}

func runJobsList(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if jobsStatusFilter != "" {
		query.Set("status", jobsStatusFilter)
	}
	if jobsTenantFilter != "" {
		query.Set("tenant", jobsTenantFilter)
	}
	path := "/jobs"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var listing jobsListResponse
	if err := fetchJSON(path, &listing); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(listing, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Status", "Tier", "Tenant", "Score", "Created")
	for _, job := range listing.Jobs {
		score := "-"
		if job.Result != nil {
			score = fmt.Sprintf("%d (%s)", job.Result.Score, job.Result.Confidence)
		}
		table.Append(job.ID, string(job.Status), job.Tier, job.TenantID, score, job.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	fmt.Printf("\n%d job(s)\n", listing.Count)
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	var job models.Job
	if err := fetchJSON("/results/"+args[0], &job); err != nil {
		return err
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	printJob(&job)
	return nil
}

func printJob(job *models.Job) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", job.ID)
	table.Append("Status", string(job.Status))
	table.Append("Tier", job.Tier)
	if job.TenantID != "" {
		table.Append("Tenant", job.TenantID)
	}
	if job.CacheHit {
		table.Append("Cache Hit", "yes")
	}
	table.Append("Created At", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		table.Append("Completed At", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Result != nil {
		table.Append("Score", fmt.Sprintf("%d", job.Result.Score))
		table.Append("Confidence", string(job.Result.Confidence))
		table.Append("Providers OK", fmt.Sprintf("%d/%d", job.Result.SucceededCount, job.Result.SucceededCount+job.Result.FailedCount))
	}
	if job.Error != "" {
		table.Append("Error", job.Error)
	}
	table.Render()

	if job.Result != nil && len(job.Result.Providers) > 0 {
		fmt.Println()
		detail := tablewriter.NewWriter(os.Stdout)
		detail.Header("Provider", "Succeeded", "Score", "Error")
		for _, pr := range job.Result.Providers {
			score := "-"
			if pr.Succeeded {
				score = fmt.Sprintf("%.1f", pr.Score)
			}
			detail.Append(pr.Provider, fmt.Sprintf("%t", pr.Succeeded), score, pr.Error)
		}
		detail.Render()
	}
}
