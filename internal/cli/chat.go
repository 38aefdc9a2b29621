// internal/cli/chat.go
package vitalink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vitalink/vitalink/internal/appconfig"
	"github.com/vitalink/vitalink/internal/llm"
	"github.com/vitalink/vitalink/internal/logging"
	"github.com/vitalink/vitalink/internal/orchestrator"
)

// quitSentinel ends the interactive loop on exact case-insensitive match.
const quitSentinel = "quit"

// chatCmd represents the 'chat' command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long:  `The 'chat' command connects the enabled tool providers and starts an interactive session with the configured chat model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context(), getConfig())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, cfg *appconfig.Config) error {
	if cfg.Debug {
		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return err
		}
	} else {
		if err := logging.InitFile(cfg.LogFilePath()); err != nil {
			return err
		}
	}
	defer logging.Close()

	client, err := llm.NewClient(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(client)
	defer orch.Close()

	if err := connectProviders(ctx, orch, cfg); err != nil {
		return err
	}

	return interactiveLoop(ctx, orch, os.Stdin)
}

// connectProviders connects every enabled provider. Individual failures are
// reported and skipped; only a fully empty catalog aborts startup.
func connectProviders(ctx context.Context, orch *orchestrator.Orchestrator, cfg *appconfig.Config) error {
	warn := color.New(color.FgYellow)
	ok := color.New(color.FgGreen)

	for _, provider := range cfg.EnabledProviders() {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeoutDuration())
		err := orch.ConnectProvider(connectCtx, provider)
		cancel()
		if err != nil {
			warn.Printf("warning: %v\n", err)
			logging.LogEvent("provider connect failed: %v", err)
			continue
		}
		ok.Printf("connected: %s\n", provider.Name)
	}

	if len(orch.Providers()) == 0 {
		return errors.New("no providers connected; nothing to do")
	}
	return nil
}

// interactiveLoop reads operator input until EOF or the quit sentinel.
// Query failures are printed and the loop continues.
func interactiveLoop(ctx context.Context, orch *orchestrator.Orchestrator, in io.Reader) error {
	prompt := color.New(color.FgCyan, color.Bold)
	errText := color.New(color.FgRed)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, quitSentinel) {
			return nil
		}

		output, err := orch.ProcessQuery(ctx, line)
		if err != nil {
			errText.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(output)
	}
}
