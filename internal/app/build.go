package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"statforge/internal/cli"
	"statforge/internal/corpus"
	"statforge/internal/db"
	"statforge/internal/logging"
	"statforge/internal/ontology"
	payloadschema "statforge/schema"
)

func runBuild(args []string) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	batchSize := fs.Int("batch-size", 0, "Records per batch (0 = configured default)")
	typeFilter := fs.String("type", "", "Restrict the run to one relation type")
	ontologyPath := fs.String("ontology", "", "Path to is-a edge JSON file")
	payloadFile := fs.String("payload-file", "", "Dry run: build in memory from a payload JSON file instead of the database")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "build does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	scope, err := parseTypeFlag(*typeFilter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid type: %v\n", err)
		return 2
	}
	comparator, err := loadComparator(*ontologyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid ontology: %v\n", err)
		return 2
	}

	opts := corpus.RunOptions{Scope: scope, BatchSize: *batchSize}

	if *payloadFile != "" {
		return runBuildDry(*payloadFile, comparator, opts, outputFormat)
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.BatchSize
	}

	orch := corpus.NewOrchestrator(
		db.NewCorpusStore(pool),
		db.NewRecordFeed(pool),
		comparator,
		logger,
		corpus.RetryPolicy{Attempts: cfg.RetryAttempts},
	)

	report, err := orch.CreateCorpus(ctx, opts)
	if err != nil {
		if errors.Is(err, corpus.ErrCorpusExists) {
			fmt.Fprintln(os.Stderr, "Corpus already exists; use supplement to incorporate new records")
			return 2
		}
		logger.Error().Err(err).Msg("corpus build failed")
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		return 1
	}

	if err := printRunReport(report, outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		return 1
	}
	return 0
}

// runBuildDry runs the full pipeline against an in-memory store so a payload
// file can be checked end to end without touching Postgres.
func runBuildDry(path string, comparator ontology.Comparator, opts corpus.RunOptions, format string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payload file: %v\n", err)
		return 1
	}
	records, err := payloadschema.ParseRecords(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload file: %v\n", err)
		return 2
	}

	logger, err := logging.New("local", "warn")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	orch := corpus.NewOrchestrator(
		corpus.NewMemStore(),
		&dryRunFeed{records: records},
		comparator,
		logger,
		corpus.RetryPolicy{},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := orch.CreateCorpus(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dry-run build failed: %v\n", err)
		return 1
	}

	if err := printRunReport(report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		return 1
	}
	return 0
}
