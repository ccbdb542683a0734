package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/worldline-systems/wll/pkg/replay"
)

// runLogCmd implements `wll log`: prints one line per receipt in a
// worldline's stream, oldest first, via replay.AuditIndexProjection
// rather than re-deriving per-kind summaries here.
func runLogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("log", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath, worldlineHex string
	var jsonOutput bool
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")
	cmd.StringVar(&worldlineHex, "worldline", "", "Hex-encoded worldline id (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output rows as JSON")

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

	rows, err := replay.AuditIndexProjection(ws.ledger, worldline)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	for _, row := range rows {
		_, _ = fmt.Fprintf(stdout, "seq=%-4d %-10s %s  %s\n", row.Seq, row.Kind, digestHex(row.Hash)[:16], row.Summary)
	}
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(stdout, "(empty worldline)")
	}
	return 0
}
