package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/jscraik/firefly-narrative/internal/config"
	"github.com/jscraik/firefly-narrative/internal/telemetry"
	"github.com/jscraik/firefly-narrative/internal/versioncheck"
	"github.com/spf13/cobra"
)

const gettingStarted = `

Getting Started:
  Run 'narrative-cli setup' inside a git repository to install the commit
  hooks that feed the Atlas. For more information, see the project README.

`

const accessibilityHelp = `
Environment Variables:
  ACCESSIBLE    Set to any value (e.g., ACCESSIBLE=1) to enable accessibility
                mode. This uses simpler text prompts instead of interactive
                TUI elements, which works better with screen readers.
`

// Version information, set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "narrative-cli",
		Short: "Narrative Atlas ingestion CLI",
		Long:  "Ingests AI coding-assistant session transcripts into the Narrative Atlas." + gettingStarted + accessibilityHelp,
		// main.go handles error printing so it isn't duplicated.
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			enabled := true
			var telemetryEnabled *bool
			if wd, err := os.Getwd(); err == nil {
				enabled = config.IsEnabled(wd)
				if s, err := config.Load(wd); err == nil {
					telemetryEnabled = s.Telemetry
				}
			}

			telemetryClient := telemetry.NewClient(Version, telemetryEnabled)
			defer telemetryClient.Close()
			telemetryClient.TrackCommand(cmd, "", enabled)

			versioncheck.CheckAndNotify(cmd, Version)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newHookCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newNotesCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	cmd.SetHelpCommand(NewHelpCmd(cmd))

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("narrative-cli %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
