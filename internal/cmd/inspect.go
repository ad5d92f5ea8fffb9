package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
)

var inspectEventsOnly bool

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the inspector snapshot of an existing session",
	Long: `Attach to an existing remote session and print its events, enriched
with the trace and graph of every event, as indented JSON.

The session is left untouched.

Examples:
  adkinspect inspect 3f2a...               # Full snapshot
  adkinspect inspect 3f2a... --events-only # Skip traces and graphs`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectEventsOnly, "events-only", false, "Print the events without traces and graphs")
}

func runInspect(cmd *cobra.Command, args []string) error {
	client := adk.New(cfg.Agent.BaseURL,
		adk.WithApp(cfg.Agent.AppName, cfg.Agent.UserID),
		adk.WithCredentialHeader(cfg.Agent.CredentialHeader),
		adk.WithDefaultCredential(defaultCredential),
		adk.WithCacheSizes(cfg.Cache.TraceSize, cfg.Cache.GraphSize),
	)
	client.Attach(args[0])

	insp := inspector.New(inspector.WithLogger(logging.Inspector()))
	return writeSnapshot(cmd.Context(), os.Stdout, insp, client, !inspectEventsOnly)
}

// writeSnapshot builds the snapshot of src and writes it as indented JSON.
func writeSnapshot(ctx context.Context, w io.Writer, insp *inspector.Inspector, src inspector.Source, full bool) error {
	var (
		snap inspector.Snapshot
		err  error
	)
	if full {
		snap, err = insp.Build(ctx, src)
	} else {
		snap, err = insp.EventsOnly(ctx, src)
	}
	if err != nil {
		return fmt.Errorf("failed to inspect session: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
