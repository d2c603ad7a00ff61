package ledger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLedgerRecordsRuns(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	first, err := s.Begin(ctx, "loan")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Metric(ctx, first, "accuracy", 0.5); err != nil {
		t.Fatal(err)
	}
	if err := s.Metric(ctx, first, "accuracy", 0.81); err != nil {
		t.Fatal(err)
	}
	if err := s.Finish(ctx, first, "submission.csv", 367, nil); err != nil {
		t.Fatal(err)
	}

	second, _ := s.Begin(ctx, "vision")
	if err := s.Finish(ctx, second, "", 0, errors.New("weights missing")); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs", len(runs))
	}
	byID := map[string]Run{}
	for _, r := range runs {
		byID[r.ID] = r
	}
	loan := byID[first]
	if loan.Status != StatusOK || loan.Rows != 367 || loan.Output != "submission.csv" || loan.FinishedAt.IsZero() {
		t.Errorf("loan run = %+v", loan)
	}
	if loan.Metrics["accuracy"] != 0.81 {
		t.Errorf("metrics = %v", loan.Metrics)
	}
	vision := byID[second]
	if vision.Status != StatusFailed || vision.Error != "weights missing" {
		t.Errorf("vision run = %+v", vision)
	}
}

func TestWriteRuns(t *testing.T) {
	runs := []Run{
		{Pipeline: "loan", StartedAt: time.Now(), Status: StatusOK, Output: "submission.csv", Rows: 367,
			Metrics: map[string]float64{"cv_mean": 0.8, "auc": 0.75}},
		{Pipeline: "vision", StartedAt: time.Now(), Status: StatusFailed, Error: "weights missing"},
	}
	var buf bytes.Buffer
	if err := WriteRuns(&buf, runs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "started") {
		t.Fatalf("table:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "submission.csv") || !strings.Contains(lines[1], "auc=0.75 cv_mean=0.8") {
		t.Errorf("loan line = %q", lines[1])
	}
	if !strings.Contains(lines[2], "failed") || !strings.Contains(lines[2], "error: weights missing") {
		t.Errorf("vision line = %q", lines[2])
	}
}

func TestFinishUnknownRun(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Finish(context.Background(), "nope", "", 0, nil); err == nil {
		t.Error("expected an error")
	}
}

func TestDisabledLedger(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]*Store{"empty path": mustOpen(t, ""), "nil": nil} {
		t.Run(name, func(t *testing.T) {
			id, err := s.Begin(ctx, "loan")
			if err != nil || id == "" {
				t.Fatalf("Begin = %q, %v", id, err)
			}
			if err := s.Metric(ctx, id, "auc", 1); err != nil {
				t.Fatal(err)
			}
			if err := s.Finish(ctx, id, "x", 1, nil); err != nil {
				t.Fatal(err)
			}
			if runs, err := s.Runs(ctx, 5); err != nil || runs != nil {
				t.Fatalf("Runs = %v, %v", runs, err)
			}
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func mustOpen(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
