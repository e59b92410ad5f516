package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/scoreflow/scoreflow/pkg/models"
)

var (
	tenantID   string
	tenantName string
	tenantTier string
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE:  runTenantsList,
}

var tenantsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tenant and issue its API key",
	Long:  `Create a tenant. The API key is printed once and cannot be recovered afterwards.`,
	RunE:  runTenantsCreate,
}

func init() {
	rootCmd.AddCommand(tenantsCmd)
	tenantsCmd.AddCommand(tenantsListCmd)
	tenantsCmd.AddCommand(tenantsCreateCmd)

	tenantsCreateCmd.Flags().StringVar(&tenantID, "id", "", "tenant ID (required, no underscores)")
	tenantsCreateCmd.Flags().StringVar(&tenantName, "name", "", "tenant display name (required)")
	tenantsCreateCmd.Flags().StringVar(&tenantTier, "tier", "free", "tier (free, standard, premium)")
	tenantsCreateCmd.MarkFlagRequired("id")
	tenantsCreateCmd.MarkFlagRequired("name")
}

type tenantsListResponse struct {
	Tenants []models.Tenant `json:"tenants"`
	Count   int             `json:"count"`
}

type tenantCreateResponse struct {
	Tenant *models.Tenant `json:"tenant"`
	APIKey string         `json:"api_key,omitempty"`
}

func runTenantsList(cmd *cobra.Command, args []string) error {
	var listing tenantsListResponse
	if err := fetchJSON("/tenants", &listing); err != nil {
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
	table.Header("ID", "Name", "Status", "Tier", "Requests/Window", "Created")
	for _, t := range listing.Tenants {
		table.Append(t.ID, t.Name, string(t.Status), t.Tier,
			fmt.Sprintf("%d", t.Quotas.RequestsPerWindow), t.CreatedAt.Format(time.RFC3339))
	}
	table.Render()
	return nil
}

func runTenantsCreate(cmd *cobra.Command, args []string) error {
	reqBody, err := json.Marshal(map[string]string{
		"id":   tenantID,
		"name": tenantName,
		"tier": tenantTier,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := CreateAuthenticatedRequest("POST", GetServerURL()+"/tenants", bytes.NewBuffer(reqBody))
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
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result tenantCreateResponse
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
	table.Append("ID", result.Tenant.ID)
	table.Append("Name", result.Tenant.Name)
	table.Append("Tier", result.Tenant.Tier)
	table.Append("Requests/Window", fmt.Sprintf("%d", result.Tenant.Quotas.RequestsPerWindow))
	table.Render()

	if result.APIKey != "" {
		fmt.Printf("\nAPI key (shown once, store it now):\n%s\n", result.APIKey)
	}
	return nil
}
