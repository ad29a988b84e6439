package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"statforge/internal/cli"
	"statforge/internal/corpus"
	"statforge/internal/db"
	"statforge/internal/logging"
)

func runSupplement(args []string) int {
	fs := flag.NewFlagSet("supplement", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	batchSize := fs.Int("batch-size", 0, "Records per batch (0 = configured default)")
	typeFilter := fs.String("type", "", "Restrict the run to one relation type")
	ontologyPath := fs.String("ontology", "", "Path to is-a edge JSON file")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "supplement does not accept positional arguments")
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

	opts := corpus.RunOptions{Scope: scope, BatchSize: *batchSize}
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

	report, err := orch.SupplementCorpus(ctx, opts)
	if err != nil {
		if errors.Is(err, corpus.ErrNoCorpus) {
			fmt.Fprintln(os.Stderr, "Corpus has not been built yet; run build first")
			return 2
		}
		logger.Error().Err(err).Msg("corpus supplement failed")
		fmt.Fprintf(os.Stderr, "Supplement failed: %v\n", err)
		return 1
	}

	if err := printRunReport(report, outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		return 1
	}
	return 0
}
