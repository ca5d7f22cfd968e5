package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/jscraik/firefly-narrative/internal/config"
	"github.com/jscraik/firefly-narrative/internal/gitutil"
	"github.com/jscraik/firefly-narrative/internal/hooks"
	"github.com/jscraik/firefly-narrative/internal/paths"
	"github.com/spf13/cobra"
)

// newSetupCmd installs the hook shims into a repository and adds it to the
// app-wide ingest config's tracked-repo list, prompting for telemetry
// consent the first time it runs anywhere.
func newSetupCmd() *cobra.Command {
	var repoPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Track this repository and install its commit hooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSetup(cmd, repoPath, yes)
		},
	}
	cmd.Flags().StringVar(&repoPath, "repo", ".", "repository working tree path")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip interactive prompts, accept defaults")
	return cmd
}

func runSetup(cmd *cobra.Command, repoPath string, yes bool) error {
	out := cmd.OutOrStdout()

	repo, err := gitutil.Open(repoPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: not a git repository: %w", err))
	}

	cliPath, err := paths.CLIBinaryPath()
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: %w", err))
	}
	installSelfCopy(cliPath)

	written, err := hooks.Install(repo, cliPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: installing hooks: %w", err))
	}
	fmt.Fprintf(out, "Installed %d hook shim(s) in %s.\n", written, repo.Root())

	settings, err := config.Load(repo.Root())
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: loading settings: %w", err))
	}
	settings.Enabled = true

	if !yes {
		if err := promptTelemetryConsent(settings); err != nil {
			return NewSilentError(err)
		}
	} else if settings.Telemetry == nil {
		optOut := false
		settings.Telemetry = &optOut
	}

	if err := config.Save(repo.Root(), settings); err != nil {
		return NewSilentError(fmt.Errorf("setup: saving settings: %w", err))
	}

	ingestCfg, err := config.LoadIngestConfig()
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: loading ingest config: %w", err))
	}

	// Open the db just long enough to resolve a stable repo id; hooks and
	// the watcher both key off the same id once this repo is tracked.
	dbRepoID, err := resolveRepoID(repo.Root())
	if err != nil {
		return NewSilentError(fmt.Errorf("setup: %w", err))
	}

	ingestCfg.AddTrackedRepo(config.TrackedRepo{RepoID: dbRepoID, Path: repo.Root()})
	if err := config.SaveIngestConfig(ingestCfg); err != nil {
		return NewSilentError(fmt.Errorf("setup: saving ingest config: %w", err))
	}

	fmt.Fprintf(out, "narrative-cli is now tracking %s.\n", repo.Root())
	return nil
}

// installSelfCopy copies the running binary to cliPath if it differs from
// the current executable, so hook shims keep working after the source
// binary that ran `setup` is removed or upgraded in place. Best-effort:
// setup still succeeds if the copy fails (e.g. permissions), since cliPath
// may already point at a valid prior install.
func installSelfCopy(cliPath string) {
	self, err := executablePath()
	if err != nil || self == cliPath {
		return
	}
	_ = copyExecutable(self, cliPath)
}

// promptTelemetryConsent asks once whether to enable anonymous usage
// analytics; leaves settings.Telemetry untouched if already answered.
func promptTelemetryConsent(settings *config.Settings) error {
	if settings.Telemetry != nil {
		return nil
	}

	consent := true
	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Help improve narrative-cli?").
				Description("Share anonymous command usage. No transcript content or file paths are collected.").
				Affirmative("Yes").
				Negative("No").
				Value(&consent),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("telemetry prompt: %w", err)
	}
	settings.Telemetry = &consent
	return nil
}
