// Package telemetry implements the two ambient "runtime state" concerns
// spec.md §9 assigns to this component: best-effort anonymous CLI usage
// analytics (grounded on the teacher's cmd/entire/cli/telemetry package) and
// the bounded, append-only AppServerStatus struct standing in for the
// Codex-app-server supervisor, which spec.md treats as a stubbed external
// collaborator (§9 Open Question: "treat as a stubbed external
// collaborator").
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// PostHogAPIKey is overridden at build time for production builds.
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is overridden at build time for production builds.
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// OptOutEnvVar disables telemetry unconditionally, regardless of settings.
const OptOutEnvVar = "NARRATIVE_TELEMETRY_OPTOUT"

// Client is the anonymous usage-analytics sink.
type Client interface {
	TrackCommand(cmd *cobra.Command, agent string, ingestEnabled bool)
	Close()
}

// NoOpClient discards every event; used when telemetry is disabled or opted out.
type NoOpClient struct{}

func (NoOpClient) TrackCommand(_ *cobra.Command, _ string, _ bool) {}
func (NoOpClient) Close()                                          {}

type silentLogger struct{}

func (silentLogger) Logf(_ string, _ ...interface{})   {}
func (silentLogger) Debugf(_ string, _ ...interface{}) {}
func (silentLogger) Warnf(_ string, _ ...interface{})  {}
func (silentLogger) Errorf(_ string, _ ...interface{}) {}

// PostHogClient sends anonymous, opt-in command-usage events.
type PostHogClient struct {
	client     posthog.Client
	machineID  string
	cliVersion string
	mu         sync.RWMutex
}

// NewClient returns a PostHogClient when telemetryEnabled is true and
// OptOutEnvVar is unset, else NoOpClient. telemetryEnabled nil (not yet
// asked) behaves like false.
//
//nolint:ireturn // factory: caller only needs the Client interface
func NewClient(version string, telemetryEnabled *bool) Client {
	if os.Getenv(OptOutEnvVar) != "" {
		return NoOpClient{}
	}
	if telemetryEnabled == nil || !*telemetryEnabled {
		return NoOpClient{}
	}

	id, err := machineid.ProtectedID("firefly-narrative")
	if err != nil {
		return NoOpClient{}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return NoOpClient{}
	}

	return &PostHogClient{client: client, machineID: id, cliVersion: version}
}

// TrackCommand records one CLI invocation. Flag names (never values) are
// captured for privacy.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, agent string, ingestEnabled bool) {
	if cmd == nil || cmd.Hidden {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()
	if c == nil {
		return
	}

	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})

	selectedAgent := agent
	if selectedAgent == "" {
		selectedAgent = "auto"
	}
	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("agent", selectedAgent).
		Set("ingestEnabled", ingestEnabled)
	if len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}

	//nolint:errcheck // best-effort telemetry; a failed enqueue must not affect the CLI
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      "cli_command_executed",
		Properties: props,
	})
}

// Close flushes any pending events, bounded by PostHogClient's ShutdownTimeout.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c != nil {
		_ = c.Close()
	}
}
