package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scoreflow/scoreflow/pkg/models"
)

var submitTier string

var submitCmd = &cobra.Command{
	Use:   "submit <input>",
	Short: "Submit an analysis job",
	Long:  `Submit an input for scoring. The server responds with a job ID; poll it with "sflow watch" or "sflow jobs get".`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitTier, "tier", "", "scoring tier (free, standard, premium)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	reqBody, err := json.Marshal(models.JobRequest{Input: input, Tier: submitTier})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := CreateAuthenticatedRequest("POST", GetServerURL()+"/analyze", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := GetHTTPClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result models.JobResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Job ID", result.JobID)
	table.Append("Status", string(result.Status))
	table.Append("Providers", strings.Join(result.Providers, ", "))
	table.Render()

	if result.Status == models.JobStatusCompleted {
		fmt.Println("\nServed from cache; fetch the result with: sflow jobs get " + result.JobID)
	} else {
		fmt.Println("\nJob submitted. Follow it with: sflow watch " + result.JobID)
	}
	return nil
}
