package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scoreflow/scoreflow/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved CLI configuration",
	RunE:  runConfigShow,
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print an example server configuration",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(config.ExampleConfig)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configExampleCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	fmt.Printf("server:  %s\n", GetServerURL())
	fmt.Printf("output:  %s\n", outputFormat)
	if apiKey != "" {
		fmt.Printf("api_key: %s...\n", apiKey[:min(8, len(apiKey))])
	} else {
		fmt.Println("api_key: (not set)")
	}
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("config:  %s\n", used)
	}
	return nil
}
