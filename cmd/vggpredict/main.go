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
	"predkit/pkg/vision"
)

//
// ---------------------- CLI FLAGS ----------------------
//
// --config   : YAML settings file; built-in defaults when empty
// --mode     : "predict" scores the test images, "train-head" fits the classifier head,
//              "summary" prints the layers, "runs" lists the ledger
// --weights  : VGG16 conv-base archive (.npz)
// --top      : classifier-head archive, read by predict and written by train-head
// --test-dir : directory holding the test images in one subdirectory
// --out      : id,label CSV
// --ledger   : SQLite run ledger; disabled when empty
// --limit    : number of runs listed by --mode runs
//
// Example:
//   go run ./cmd/vggpredict --weights vgg16_weights.npz --top bottleneck_top_model.npz --test-dir data/test_small
//
// -------------------------------------------------------
//

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config")
	mode := flag.String("mode", "predict", "predict, train-head, summary or runs")
	weights := flag.String("weights", "", "VGG16 weights archive")
	top := flag.String("top", "", "Classifier head weights archive")
	testDir := flag.String("test-dir", "", "Test image directory")
	out := flag.String("out", "", "Output CSV")
	ledgerPath := flag.String("ledger", "", "SQLite run ledger")
	limit := flag.Int("limit", 20, "Runs listed by --mode runs")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "weights":
			cfg.Vision.Weights = *weights
		case "top":
			cfg.Vision.TopWeights = *top
		case "test-dir":
			cfg.Vision.TestDir = *testDir
		case "out":
			cfg.Vision.Output = *out
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
		res, err := vision.Predict(ctx, cfg.Vision, logger, store)
		if err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
		fmt.Printf("Scored %d images, saved to %s and %s\n", len(res.IDs), cfg.Vision.Output, cfg.Vision.Predictions)
	case "train-head":
		res, err := vision.TrainHead(ctx, cfg.Vision, logger, store)
		if err != nil {
			log.Fatalf("Training failed: %v", err)
		}
		fmt.Printf("Trained on %d images of %v\n", res.Samples, res.Classes)
		if n := len(res.History); n > 0 {
			last := res.History[n-1]
			fmt.Printf("Final epoch: loss %.4f acc %.4f val_acc %.4f\n", last.Loss, last.Accuracy, last.ValAccuracy)
		}
	case "summary":
		m, err := vision.NewModel(cfg.Vision)
		if err != nil {
			log.Fatalf("Error building model: %v", err)
		}
		fmt.Println("=== Conv base ===")
		if err := m.Base.Summary(os.Stdout); err != nil {
			log.Fatal(err)
		}
		fmt.Println("=== Classifier head ===")
		if err := m.Head.Summary(os.Stdout); err != nil {
			log.Fatal(err)
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
		log.Fatalf("Unknown mode %q (want predict, train-head, summary or runs)", *mode)
	}
}
