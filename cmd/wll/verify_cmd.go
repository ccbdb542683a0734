package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/worldline-systems/wll/pkg/validate"
)

// runVerifyCmd implements `wll verify`: scans one worldline's receipt
// stream for every integrity violation validate.Stream can find, rather
// than stopping at the first.
//
// Exit codes:
//
//	0 = stream is clean
//	1 = one or more violations found
//	2 = usage error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var cfgPath, worldlineHex string
	var jsonOutput bool
	cmd.StringVar(&cfgPath, "config", "", "Path to wll.yaml (optional)")
	cmd.StringVar(&worldlineHex, "worldline", "", "Hex-encoded worldline id (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

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

	report, err := validate.Stream(ws.ledger, worldline)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if report.Clean() {
		_, _ = fmt.Fprintf(stdout, "%sOK%s %d receipt(s) scanned, no violations\n", colorGreen, colorReset, report.ReceiptsScanned)
	} else {
		_, _ = fmt.Fprintf(stdout, "FAILED %d receipt(s) scanned, %d violation(s)\n", report.ReceiptsScanned, len(report.Violations))
		for _, v := range report.Violations {
			_, _ = fmt.Fprintf(stdout, "  seq %d: %s\n", v.Seq, v.Message)
		}
	}

	if !report.Clean() {
		return 1
	}
	return 0
}
