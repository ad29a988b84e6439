package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "build":
		return runBuild(args[1:])
	case "supplement":
		return runSupplement(args[1:])
	case "status":
		return runStatus(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "statforge CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  statforge <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health      Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  validate    Validate raw statement payload JSON files against v1 schema")
	fmt.Fprintln(os.Stderr, "  build       Create the canonical corpus from all raw statements")
	fmt.Fprintln(os.Stderr, "  supplement  Incorporate raw statements newer than the watermark")
	fmt.Fprintln(os.Stderr, "  status      Report corpus state, watermark and table counts")
	fmt.Fprintln(os.Stderr, "  serve       Start the ops HTTP server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"statforge <command> -h\" for command-specific flags.")
}
