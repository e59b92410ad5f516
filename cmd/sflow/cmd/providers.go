package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and circuit states",
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

type providerInfo struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	CircuitState string `json:"circuit_state"`
}

type providersResponse struct {
	Providers []providerInfo `json:"providers"`
	Count     int            `json:"count"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	var listing providersResponse
	if err := fetchJSON("/providers", &listing); err != nil {
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
	table.Header("Provider", "Enabled", "Circuit")
	for _, p := range listing.Providers {
		table.Append(p.Name, fmt.Sprintf("%t", p.Enabled), p.CircuitState)
	}
	table.Render()
	return nil
}
