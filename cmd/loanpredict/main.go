package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"predkit/pkg/config"
	"predkit/pkg/ledger"
	"predkit/pkg/loan"
	"predkit/pkg/model"
)

//
// ---------------------- CLI FLAGS ----------------------
//
// --config : YAML settings file; built-in defaults when empty
// --mode   : "predict" writes the submission, "tune" grid-searches params,
//            "describe" summarizes the raw files, "runs" lists the ledger
// --train  : training CSV (overrides loan.train)
// --test   : test CSV (overrides loan.test)
// --out    : submission CSV (overrides loan.output)
// --seed   : random seed for the estimator and CV folds
// --holdout: share of train rows scored on a separate fit (overrides loan.holdout)
// --ledger : SQLite run ledger; disabled when empty
// --limit  : number of runs listed by --mode runs
//
// Example:
//   go run ./cmd/loanpredict --train train.csv --test test.csv --out submission_GBM.csv
//
// -------------------------------------------------------
//

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config")
	mode := flag.String("mode", "predict", "predict, tune, describe or runs")
	train := flag.String("train", "", "Training CSV")
	test := flag.String("test", "", "Test CSV")
	out := flag.String("out", "", "Submission CSV")
	seed := flag.Int64("seed", 0, "Random seed")
	holdout := flag.Float64("holdout", 0, "Share of train rows held out and scored")
	ledgerPath := flag.String("ledger", "", "SQLite run ledger")
	limit := flag.Int("limit", 20, "Runs listed by --mode runs")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "train":
			cfg.Loan.Train = *train
		case "test":
			cfg.Loan.Test = *test
		case "out":
			cfg.Loan.Output = *out
		case "seed":
			cfg.Loan.Seed = *seed
		case "holdout":
			cfg.Loan.Holdout = *holdout
		case "ledger":
			cfg.Ledger.Path = *ledgerPath
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		log.Fatalf("Error opening ledger: %v", err)
	}
	defer store.Close()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	switch *mode {
	case "predict":
		res, err := loan.Run(ctx, cfg.Loan, logger, store)
		if err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
		if err := res.WriteReport(os.Stdout); err != nil {
			log.Fatalf("Error writing report: %v", err)
		}
		fmt.Printf("\nSaved %d predictions to %s\n", len(res.IDs), cfg.Loan.Output)
	case "tune":
		res, err := loan.Tune(ctx, cfg.Loan, logger, store)
		if err != nil {
			log.Fatalf("Tuning failed: %v", err)
		}
		fmt.Println("=== Grid search ===")
		for _, c := range res.Results {
			fmt.Printf("  %-40s %s\n", model.FormatParams(c.Params), c.CVSummary)
		}
		fmt.Printf("Best params: %s (%.7g)\n", model.FormatParams(res.BestParams), res.BestScore)
	case "describe":
		if err := loan.Describe(os.Stdout, cfg.Loan); err != nil {
			log.Fatalf("Error describing data: %v", err)
		}
	case "runs":
		if cfg.Ledger.Path == "" {
			log.Fatal("The runs mode needs --ledger or ledger.path")
		}
		runs, err := store.Runs(ctx, *limit)
		if err != nil {
			log.Fatalf("Error reading ledger: %v", err)
		}
		if err := ledger.WriteRuns(os.Stdout, runs); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown mode %q (want predict, tune, describe or runs)", *mode)
	}
}
