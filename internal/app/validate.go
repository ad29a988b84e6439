package app

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"

	payloadschema "statforge/schema"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	quiet := fs.Bool("quiet", false, "Only report failures")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "validate requires at least one payload JSON file")
		return 2
	}

	failures := 0
	for _, path := range fs.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failures++
			continue
		}

		count, err := parsePayloadFile(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failures++
			continue
		}
		if !*quiet {
			fmt.Printf("OK   %s (%d statement(s))\n", path, count)
		}
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d file(s) failed validation\n", failures)
		return 1
	}
	return 0
}

// parsePayloadFile accepts either a single payload object or an array of
// payloads and returns the number of valid statements.
func parsePayloadFile(raw []byte) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		records, err := payloadschema.ParseRecords(trimmed)
		if err != nil {
			return 0, err
		}
		return len(records), nil
	}

	if _, err := payloadschema.ValidateRawStatementPayload(trimmed); err != nil {
		return 0, err
	}
	return 1, nil
}
