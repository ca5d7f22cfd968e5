package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jscraik/firefly-narrative/cmd/narrative/cli"
	"github.com/spf13/cobra"

	// Parsers self-register with internal/parser on import.
	_ "github.com/jscraik/firefly-narrative/internal/parser/claudecode"
	_ "github.com/jscraik/firefly-narrative/internal/parser/codex"
	_ "github.com/jscraik/firefly-narrative/internal/parser/continuecli"
	_ "github.com/jscraik/firefly-narrative/internal/parser/copilot"
	_ "github.com/jscraik/firefly-narrative/internal/parser/cursor"
	_ "github.com/jscraik/firefly-narrative/internal/parser/geminicli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCmd()
	err := rootCmd.ExecuteContext(ctx)

	if err != nil {
		var silent *cli.SilentError

		switch {
		case errors.As(err, &silent):
			// Command already printed the error.
		case strings.Contains(err.Error(), "unknown command") || strings.Contains(err.Error(), "unknown flag"):
			showSuggestion(rootCmd, err)
		default:
			fmt.Fprintln(rootCmd.OutOrStderr(), err)
		}

		cancel()
		os.Exit(1)
	}
	cancel()
}

func showSuggestion(cmd *cobra.Command, err error) {
	fmt.Fprint(cmd.OutOrStderr(), cmd.UsageString())
	fmt.Fprintf(cmd.OutOrStderr(), "\nError: Invalid usage: %v\n", err)
}
