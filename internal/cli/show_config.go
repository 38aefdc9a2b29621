// internal/cli/show_config.go
package vitalink

import (
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
)

// showConfigCmd prints the merged configuration so flag/config interplay can
// be inspected.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON config is loaded properly and overridden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		fmt.Printf("Config file: %s\n\n", cfg.ConfigPath)

		if DebugEnabled() {
			pp.Println(cfg)
			return
		}

		fmt.Println("Current configuration:")
		fmt.Printf("  Debug:    %v\n", cfg.Debug)
		fmt.Printf("  Model:    %s\n", cfg.LLM.Model)
		fmt.Printf("  Endpoint: %s\n", cfg.LLM.BaseURL)
		fmt.Printf("  Log file: %s\n", cfg.LogFilePath())
		fmt.Println("  Providers:")
		for _, provider := range cfg.Providers {
			state := "disabled"
			if provider.Enabled {
				state = "enabled"
			}
			target := provider.Command
			if provider.Kind == "sse" {
				target = provider.URL
			}
			fmt.Printf("    %-12s %-6s %-9s %s\n", provider.Name, provider.Kind, state, target)
		}
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
}
