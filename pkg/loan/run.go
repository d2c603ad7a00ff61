package loan

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"

	"predkit/pkg/config"
	"predkit/pkg/frame"
	"predkit/pkg/ledger"
	"predkit/pkg/loader"
	"predkit/pkg/model"
	"predkit/pkg/report"
)

// Dataset is a prepared frame split into model inputs.
type Dataset struct {
	Frame      *frame.Frame
	Predictors []string

	TrainX [][]float64
	TrainY []int
	TestX  [][]float64
	TestID []string
}

// Build loads, prepares and splits the applicant files.
func Build(ctx context.Context, cfg config.Loan, logger *log.Logger) (*Dataset, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	f, err := Load(cfg)
	if err != nil {
		return nil, err
	}
	if err := Prepare(ctx, f, logger); err != nil {
		return nil, err
	}
	ds := &Dataset{Frame: f, Predictors: Predictors(f)}

	train, test, err := Split(f)
	if err != nil {
		return nil, err
	}
	if ds.TrainX, err = train.Matrix(ds.Predictors); err != nil {
		return nil, err
	}
	status, err := train.Numeric(ColStatus)
	if err != nil {
		return nil, err
	}
	ds.TrainY = make([]int, len(status))
	for i, s := range status {
		ds.TrainY[i] = int(s)
	}
	if ds.TestX, err = test.Matrix(ds.Predictors); err != nil {
		return nil, err
	}
	if ds.TestID, err = test.Strings(ColID); err != nil {
		return nil, err
	}
	return ds, nil
}

// Estimator returns the configured classifier with its seed applied
// before any explicit params, so params may still override it.
func Estimator(cfg config.Loan) (model.Tunable, error) {
	est, err := model.New(cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := est.SetParam("random_state", float64(cfg.Seed)); err != nil {
		return nil, err
	}
	if err := model.SetParams(est, cfg.Params); err != nil {
		return nil, err
	}
	return est, nil
}

// Result is the outcome of one prediction run.
type Result struct {
	IDs        []string
	Status     []string
	Proba      []float64
	Predictors []string
	Params     map[string]float64

	TrainAccuracy float64
	TrainAUC      float64
	CVScores      []float64
	CV            model.CVSummary
	Importances   []report.Importance

	// Holdout is nil unless cfg.Holdout is set.
	Holdout *Holdout
}

// Holdout scores a clone of the estimator fitted on the train rows left
// after a seeded split and evaluated on the rows split off.
type Holdout struct {
	Rows      int
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	// Confusion is indexed [true][predicted].
	Confusion [2][2]int
}

func evaluateHoldout(est model.Tunable, X [][]float64, y []int, ratio float64, seed int64) (*Holdout, error) {
	train, test := loader.TrainTestSplit(len(X), ratio, rand.New(rand.NewSource(seed)))
	if len(test) == 0 || len(train) == 0 {
		return nil, fmt.Errorf("loan: holdout of %g leaves %d/%d rows", ratio, len(train), len(test))
	}
	m := est.Clone()
	xs, ys := loader.Rows(X, y, train)
	if err := m.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("loan: fit holdout: %w", err)
	}
	xt, yt := loader.Rows(X, y, test)
	pred := m.Predict(xt)
	h := &Holdout{
		Rows:      len(test),
		Accuracy:  model.Accuracy(yt, pred),
		Confusion: model.ConfusionMatrix(yt, pred),
	}
	h.Precision, h.Recall, h.F1 = model.PrecisionRecallF1(yt, pred)
	return h, nil
}

// WriteReport prints the model report.
func (r *Result) WriteReport(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "\nModel Report (%s)\n", model.FormatParams(r.Params)); err != nil {
		return err
	}
	fmt.Fprintf(w, "Accuracy : %.4g\n", r.TrainAccuracy)
	fmt.Fprintf(w, "AUC Score (Train): %f\n", r.TrainAUC)
	fmt.Fprintf(w, "CV Score : %s\n", r.CV)
	if h := r.Holdout; h != nil {
		fmt.Fprintf(w, "Accuracy on test data: %0.2f (%d rows)\n", h.Accuracy, h.Rows)
		fmt.Fprintf(w, "Precision : %.4g | Recall : %.4g | F1 : %.4g\n", h.Precision, h.Recall, h.F1)
		fmt.Fprintf(w, "Confusion : TN %d | FP %d | FN %d | TP %d\n",
			h.Confusion[0][0], h.Confusion[0][1], h.Confusion[1][0], h.Confusion[1][1])
	}
	if len(r.Importances) > 0 {
		fmt.Fprintln(w, "Feature Importances")
	}
	for _, imp := range r.Importances {
		if _, err := fmt.Fprintf(w, "  %-40s %.6f\n", imp.Name, imp.Value); err != nil {
			return err
		}
	}
	return nil
}

// Run fits the configured estimator on the train rows, labels the test
// rows and writes the Loan_ID,Loan_Status submission to cfg.Output. The
// run and its scores are recorded in store when it is enabled.
func Run(ctx context.Context, cfg config.Loan, logger *log.Logger, store *ledger.Store) (res *Result, err error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runID, err := store.Begin(ctx, "loan")
	if err != nil {
		return nil, err
	}
	defer func() {
		rows := 0
		if res != nil {
			rows = len(res.IDs)
		}
		if ferr := store.Finish(ctx, runID, cfg.Output, rows, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	ds, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Printf("loan: %d train rows, %d test rows, %d predictors", len(ds.TrainX), len(ds.TestX), len(ds.Predictors))
	if cfg.Prepared != "" {
		if err := ds.Frame.WriteCSVFile(cfg.Prepared); err != nil {
			return nil, err
		}
	}

	est, err := Estimator(cfg)
	if err != nil {
		return nil, err
	}
	scorer, err := model.ScorerByName(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	folds := loader.StratifiedKFold(ds.TrainY, cfg.CVFolds, rand.New(rand.NewSource(cfg.Seed)))
	cvScores, err := model.CrossValScore(est, ds.TrainX, ds.TrainY, folds, scorer)
	if err != nil {
		return nil, fmt.Errorf("loan: cross-validate: %w", err)
	}
	var holdout *Holdout
	if cfg.Holdout > 0 {
		if holdout, err = evaluateHoldout(est, ds.TrainX, ds.TrainY, cfg.Holdout, cfg.Seed); err != nil {
			return nil, err
		}
		logger.Printf("loan: holdout accuracy %.4g on %d rows", holdout.Accuracy, holdout.Rows)
	}

	if err := est.Fit(ds.TrainX, ds.TrainY); err != nil {
		return nil, fmt.Errorf("loan: fit: %w", err)
	}
	res = &Result{
		IDs:           ds.TestID,
		Predictors:    ds.Predictors,
		Params:        est.Params(),
		TrainAccuracy: model.Accuracy(ds.TrainY, est.Predict(ds.TrainX)),
		TrainAUC:      model.ROCAUC(ds.TrainY, est.PredictProba(ds.TrainX)),
		CVScores:      cvScores,
		CV:            model.SummarizeScores(cvScores),
		Holdout:       holdout,
	}
	if imp, ok := est.(model.Importancer); ok {
		if res.Importances, err = report.SortImportances(ds.Predictors, imp.FeatureImportances()); err != nil {
			return res, err
		}
		if cfg.ImportanceChart != "" {
			if err := report.FeatureImportanceChart(cfg.ImportanceChart, ds.Predictors, imp.FeatureImportances()); err != nil {
				return res, err
			}
		}
	}

	res.Proba = est.PredictProba(ds.TestX)
	res.Status = make([]string, len(res.Proba))
	for i, label := range est.Predict(ds.TestX) {
		res.Status[i] = "N"
		if label == 1 {
			res.Status[i] = "Y"
		}
	}
	if err := writeSubmission(cfg.Output, res.IDs, res.Status); err != nil {
		return res, err
	}
	logger.Printf("loan: wrote %d predictions to %s", len(res.IDs), cfg.Output)

	metrics := map[string]float64{
		"train_accuracy": res.TrainAccuracy,
		"train_auc":      res.TrainAUC,
		"cv_mean":        res.CV.Mean,
		"cv_std":         res.CV.Std,
	}
	if h := res.Holdout; h != nil {
		metrics["holdout_accuracy"] = h.Accuracy
		metrics["holdout_precision"] = h.Precision
		metrics["holdout_recall"] = h.Recall
		metrics["holdout_f1"] = h.F1
	}
	for name, v := range metrics {
		if err := store.Metric(ctx, runID, name, v); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writeSubmission(path string, ids, status []string) error {
	sub := frame.New(len(ids))
	if err := sub.SetStrings(ColID, ids); err != nil {
		return err
	}
	if err := sub.SetStrings(ColStatus, status); err != nil {
		return err
	}
	return sub.WriteCSVFile(path)
}

// Tune grid-searches the configured estimator on the train rows with
// stratified k-fold cross-validation and logs every candidate. The grid defaults to
// the number of boosting stages.
func Tune(ctx context.Context, cfg config.Loan, logger *log.Logger, store *ledger.Store) (res *model.SearchResult, err error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runID, err := store.Begin(ctx, "loan-tune")
	if err != nil {
		return nil, err
	}
	defer func() {
		rows := 0
		if res != nil {
			rows = len(res.Results)
		}
		if ferr := store.Finish(ctx, runID, "", rows, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	ds, err := Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	est, err := Estimator(cfg)
	if err != nil {
		return nil, err
	}
	scorer, err := model.ScorerByName(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	grid := model.Grid(cfg.Grid)
	if len(grid) == 0 {
		grid = config.DefaultGrid()
	}
	folds := loader.StratifiedKFold(ds.TrainY, cfg.CVFolds, rand.New(rand.NewSource(cfg.Seed)))

	res, err = model.GridSearch(ctx, est, grid, ds.TrainX, ds.TrainY, folds, scorer)
	if err != nil {
		return nil, err
	}
	for _, c := range res.Results {
		logger.Printf("tune: %s: %s", model.FormatParams(c.Params), c.CVSummary)
	}
	logger.Printf("tune: best %s (%.7g)", model.FormatParams(res.BestParams), res.BestScore)

	if err := store.Metric(ctx, runID, "best_score", res.BestScore); err != nil {
		return res, err
	}
	for name, v := range res.BestParams {
		if err := store.Metric(ctx, runID, "best."+name, v); err != nil {
			return res, err
		}
	}
	return res, nil
}
