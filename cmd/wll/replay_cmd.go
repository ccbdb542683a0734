package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/worldline-systems/wll/pkg/replay"
)

// runReplayCmd implements `wll replay`: projects a worldline's latest
// state by folding its full receipt stream from genesis.
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath, worldlineHex string
	var jsonOutput bool
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")
	cmd.StringVar(&worldlineHex, "worldline", "", "Hex-encoded worldline id (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the full projection as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	worldline, err := parseWorldline(worldlineHex)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	ws, err := openWorkspace(ctx, cfgPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer ws.Close()

	projection, err := replay.LatestStateProjection(ws.ledger, worldline)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, err := json.MarshalIndent(projection, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "head:       %s\n", digestHex(projection.HeadReceiptHash)[:16])
	_, _ = fmt.Fprintf(stdout, "trajectory: %d\n", projection.TrajectoryLength)
	if projection.HasCommitment {
		_, _ = fmt.Fprintf(stdout, "commitment: %s\n", digestHex(projection.LatestCommitmentId)[:16])
	}
	stateJSON, err := json.MarshalIndent(projection.State, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "state:      %s\n", stateJSON)
	return 0
}
