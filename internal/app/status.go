package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"statforge/internal/cli"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryCorpusStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query corpus stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	typeRows := make([][]string, 0, len(stats.Types)+1)
	for _, row := range stats.Types {
		typeRows = append(typeRows, []string{
			row.RelationType,
			fmt.Sprintf("%d", row.Canonical),
			fmt.Sprintf("%d", row.Refinements),
		})
	}
	typeRows = append(typeRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Totals.Canonical),
		fmt.Sprintf("%d", stats.Totals.Refinements),
	})

	if err := writeTable([]string{"relation_type", "canonical", "refinements"}, typeRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render type table: %v\n", err)
		return 1
	}

	fmt.Println()
	summaryRows := [][]string{
		{"raw_statements", fmt.Sprintf("%d", stats.Totals.RawStatements)},
		{"record_links", fmt.Sprintf("%d", stats.Totals.RecordLinks)},
		{"pending_raw_statements", fmt.Sprintf("%d", stats.Pending)},
	}
	if stats.Watermark != nil {
		summaryRows = append(summaryRows,
			[]string{"watermark_run_type", stats.Watermark.RunType},
			[]string{"watermark_last_record_id", fmt.Sprintf("%d", stats.Watermark.LastRecordID)},
			[]string{"watermark_completed_at", formatUTCTimestamp(stats.Watermark.CompletedAt)},
		)
	} else {
		summaryRows = append(summaryRows, []string{"watermark", "none (corpus never built)"})
	}
	if err := writeTable([]string{"metric", "value"}, summaryRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary table: %v\n", err)
		return 1
	}

	return 0
}
