// internal/cli/show_tools.go
package vitalink

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitalink/vitalink/internal/llm"
	"github.com/vitalink/vitalink/internal/logging"
	"github.com/vitalink/vitalink/internal/orchestrator"
)

// showToolsCmd connects the enabled providers and prints the flattened
// capability catalog the model would see.
var showToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Show the capability catalog",
	Long:  `Connects every enabled provider and lists the qualified tool names, including the synthesized resource capabilities, as offered to the model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if err := logging.InitFile(cfg.LogFilePath()); err != nil {
			return err
		}
		defer logging.Close()

		orch := orchestrator.New(noCompleter{})
		defer orch.Close()

		if err := connectProviders(cmd.Context(), orch, cfg); err != nil {
			return err
		}

		heading := color.New(color.FgCyan, color.Bold)
		name := color.New(color.FgGreen)

		heading.Println("Capability catalog:")
		for _, descriptor := range orch.Descriptors() {
			name.Printf("  %s\n", descriptor.Name)
			if descriptor.Description != "" {
				fmt.Printf("      %s\n", descriptor.Description)
			}
		}
		return nil
	},
}

// noCompleter satisfies the orchestrator without a chat backend; listing
// the catalog never issues a completion.
type noCompleter struct{}

func (noCompleter) Complete(context.Context, []llm.Message, []llm.ToolDefinition) (llm.Response, error) {
	return llm.Response{}, fmt.Errorf("no chat backend configured for this command")
}

func init() {
	showCmd.AddCommand(showToolsCmd)
}
