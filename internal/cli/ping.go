package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/jmap/internal/client"
	"github.com/roach88/jmap/internal/config"
	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/method"
	"github.com/roach88/jmap/internal/value"
)

// PingOptions holds flags for the ping command.
type PingOptions struct {
	*RootOptions
	Config  string
	Timeout time.Duration
}

// PingResult reports a connectivity check.
type PingResult struct {
	SessionURL   string   `json:"session_url"`
	APIURL       string   `json:"api_url"`
	State        string   `json:"state"`
	Capabilities []string `json:"capabilities"`
	BatchToken   string   `json:"batch_token"`
	RoundTripMS  int64    `json:"round_trip_ms"`
}

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to a JMAP server",
		Long: `Discover the session named by the config file and send one Core/echo
batch. The echo must come back unchanged.

Exit codes:
  0 - Server reachable and echo returned intact
  1 - Session discovery or the echo batch failed
  2 - Command error (unreadable or invalid config)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "jmap.yaml", "client config file")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall deadline")

	return cmd
}

func runPing(ctx context.Context, opts *PingOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	clientOpts, err := cfg.ClientOptions(opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve credentials", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := client.Connect(ctx, cfg.SessionURL, clientOpts...)
	if err != nil {
		_ = f.Error("E_SESSION", err.Error(), nil)
		return WrapExitError(ExitFailure, "session discovery failed", err)
	}
	snap := c.Session()
	f.VerboseLog("session %s: %d capabilities, api %s", snap.State, len(snap.CapabilityURIs()), snap.APIURL)

	nonce := uuid.NewString()
	b, err := c.NewBatch()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start batch", err)
	}
	id, err := b.AddCall("Core/echo", graph.Arguments{"ping": graph.Lit(value.String(nonce))})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build echo", err)
	}
	batch, err := b.Finalize()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build echo", err)
	}

	start := time.Now()
	results, err := c.Send(ctx, batch)
	if err != nil {
		_ = f.Error("E_ECHO", err.Error(), nil)
		return WrapExitError(ExitFailure, "echo batch failed", err)
	}
	elapsed := time.Since(start)

	echo, err := client.Typed[method.EchoResult](results, id)
	if err != nil {
		_ = f.Error("E_ECHO", err.Error(), nil)
		return WrapExitError(ExitFailure, "echo batch failed", err)
	}
	if got, _ := echo.Arguments["ping"].(value.String); string(got) != nonce {
		_ = f.Error("E_ECHO", "echo came back altered", echo.Arguments)
		return NewExitError(ExitFailure, "echo came back altered")
	}

	result := PingResult{
		SessionURL:   cfg.SessionURL,
		APIURL:       snap.APIURL,
		State:        snap.State,
		Capabilities: snap.CapabilityURIs(),
		BatchToken:   results.Token(),
		RoundTripMS:  elapsed.Milliseconds(),
	}
	if opts.Format == "json" {
		return f.JSON(Response{Status: "ok", Data: result})
	}
	fmt.Fprintf(f.Writer, "✓ %s reachable (session state %s, %d capabilities, echo %dms)\n",
		result.APIURL, result.State, len(result.Capabilities), result.RoundTripMS)
	return nil
}
