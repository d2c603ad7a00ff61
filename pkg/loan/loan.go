// Package loan predicts loan approval from applicant records: it joins the
// train and test files, engineers the income and loan features, fits a
// classifier on the train rows and labels the test rows Y or N.
package loan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"predkit/pkg/config"
	"predkit/pkg/dataprep"
	"predkit/pkg/frame"
	"predkit/pkg/pipeline"
)

// Column names of the applicant files and of the engineered features.
const (
	ColID        = "Loan_ID"
	ColStatus    = "Loan_Status"
	ColSource    = "source"
	ColGender    = "Gender"
	ColMarried   = "Married"
	ColDeps      = "Dependents"
	ColEducation = "Education"
	ColSelfEmp   = "Self_Employed"
	ColApplicant = "ApplicantIncome"
	ColCoapp     = "CoapplicantIncome"
	ColAmount    = "LoanAmount"
	ColTerm      = "Loan_Amount_Term"
	ColCredit    = "Credit_History"
	ColArea      = "Property_Area"

	ColAmountLog        = "LoanAmount_log"
	ColTotalIncome      = "TotalIncome"
	ColTotalIncomeLog   = "TotalIncome_log"
	ColRatioLogs        = "LoanTotalIncome_ratio_logs"
	ColRatio            = "LoanTotalIncome_ratio"
	ColMonthlyRatio     = "paidMonthlyTotalIncome_ratio"
	ColMonthlyRatioLogs = "paidMonthlyTotalIncome_ratio_logs"
	ColMonthlyTimesDeps = "paidMonthlyTotalIncome_ratio_timesDeti"
)

const (
	sourceTrain = "train"
	sourceTest  = "test"
)

var ErrNoRows = errors.New("loan: no rows")

// categoricals are read as text even when a file happens to hold only
// digits in them (Dependents is "0".."3+").
var categoricals = []string{ColGender, ColMarried, ColDeps, ColEducation, ColSelfEmp, ColArea}

// Schema is what the joined applicant files must provide.
var Schema = pipeline.Schema{Fields: []pipeline.Field{
	{Name: ColID, Kind: frame.Categorical},
	{Name: ColGender, Kind: frame.Categorical},
	{Name: ColMarried, Kind: frame.Categorical},
	{Name: ColDeps, Kind: frame.Categorical},
	{Name: ColEducation, Kind: frame.Categorical},
	{Name: ColSelfEmp, Kind: frame.Categorical},
	{Name: ColApplicant, Kind: frame.Numeric},
	{Name: ColCoapp, Kind: frame.Numeric},
	{Name: ColAmount, Kind: frame.Numeric},
	{Name: ColTerm, Kind: frame.Numeric},
	{Name: ColCredit, Kind: frame.Numeric},
	{Name: ColArea, Kind: frame.Categorical},
	{Name: ColStatus, Kind: frame.Categorical},
}}

// Load reads the train and test files, tags every row with its source and
// stacks them so both go through the same transformations.
func Load(cfg config.Loan) (*frame.Frame, error) {
	train, err := frame.ReadCSV(cfg.Train)
	if err != nil {
		return nil, fmt.Errorf("loan: read train: %w", err)
	}
	test, err := frame.ReadCSV(cfg.Test)
	if err != nil {
		return nil, fmt.Errorf("loan: read test: %w", err)
	}
	if train.Len() == 0 || test.Len() == 0 {
		return nil, fmt.Errorf("%w: %d train, %d test", ErrNoRows, train.Len(), test.Len())
	}
	if err := tag(train, sourceTrain); err != nil {
		return nil, err
	}
	if err := tag(test, sourceTest); err != nil {
		return nil, err
	}

	f := frame.Concat(train, test)
	for _, name := range categoricals {
		if err := asCategorical(f, name); err != nil {
			return nil, err
		}
	}
	if err := Schema.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func tag(f *frame.Frame, source string) error {
	v := make([]string, f.Len())
	for i := range v {
		v[i] = source
	}
	return f.SetStrings(ColSource, v)
}

func asCategorical(f *frame.Frame, name string) error {
	c, err := f.Column(name)
	if err != nil {
		// left for the schema to report
		return nil
	}
	if c.Kind == frame.Categorical {
		return nil
	}
	v := make([]string, c.Len())
	for i := range v {
		v[i] = c.Cell(i)
	}
	return f.SetStrings(name, v)
}

// Steps are the transformations applied to the joined frame, in order.
func Steps() []pipeline.Step {
	return []pipeline.Step{
		pipeline.Func("encode target", func(f *frame.Frame) error {
			return dataprep.MapStrings(f, ColStatus, ColStatus, func(s string) float64 {
				if s == "Y" {
					return 1
				}
				return 0
			})
		}),
		pipeline.Func("fill self employed", func(f *frame.Frame) error {
			_, err := dataprep.FillString(f, ColSelfEmp, "No")
			return err
		}),
		pipeline.Func("fill loan amount", func(f *frame.Frame) error {
			t, err := dataprep.GroupedMedian(f, ColAmount, ColSelfEmp, ColEducation)
			if err != nil {
				return err
			}
			_, err = dataprep.FillGroupedMedian(f, t)
			return err
		}),
		pipeline.Func("fill defaults", fillDefaults),
		pipeline.Func("derive ratios", deriveRatios),
		pipeline.Func("label encode", func(f *frame.Frame) error {
			for _, name := range categoricals {
				if _, err := dataprep.LabelEncodeColumn(f, name); err != nil {
					return err
				}
			}
			return nil
		}),
		pipeline.Func("dependents interaction", func(f *frame.Frame) error {
			return dataprep.Product(f, ColMonthlyRatio, ColDeps, ColMonthlyTimesDeps)
		}),
		pipeline.Func("one-hot credit history", func(f *frame.Frame) error {
			_, err := dataprep.OneHot(f, ColCredit)
			return err
		}),
	}
}

func fillDefaults(f *frame.Frame) error {
	for col, v := range map[string]string{ColGender: "Male", ColMarried: "Yes", ColDeps: "0"} {
		if _, err := dataprep.FillString(f, col, v); err != nil {
			return err
		}
	}
	if _, err := dataprep.FillNumeric(f, ColTerm, 360); err != nil {
		return err
	}
	// 2 marks an unknown credit history as its own category.
	_, err := dataprep.FillNumeric(f, ColCredit, 2)
	return err
}

func deriveRatios(f *frame.Frame) error {
	if err := dataprep.Log(f, ColAmount, ColAmountLog); err != nil {
		return err
	}
	if err := dataprep.Sum(f, ColApplicant, ColCoapp, ColTotalIncome); err != nil {
		return err
	}
	if err := dataprep.Log(f, ColTotalIncome, ColTotalIncomeLog); err != nil {
		return err
	}
	if err := dataprep.Ratio(f, ColAmountLog, ColTotalIncomeLog, ColRatioLogs); err != nil {
		return err
	}
	if err := dataprep.Ratio(f, ColAmount, ColTotalIncome, ColRatio); err != nil {
		return err
	}
	// loan amounts are in thousands, the term in months
	if err := dataprep.Derive(f, ColMonthlyRatio, func(r []float64) float64 {
		return r[0] / r[1] * 1000 / r[2]
	}, ColAmount, ColTerm, ColTotalIncome); err != nil {
		return err
	}
	return dataprep.Derive(f, ColMonthlyRatioLogs, func(r []float64) float64 {
		return r[0] / r[1] * 1000 / r[2]
	}, ColAmountLog, ColTerm, ColTotalIncomeLog)
}

// Prepare runs Steps over the joined frame.
func Prepare(ctx context.Context, f *frame.Frame, logger *log.Logger) error {
	p := pipeline.NewPipeline(Steps()...)
	if logger != nil {
		p = p.WithLogger(logger)
	}
	return p.Run(ctx, f)
}

// excluded columns are identifiers, the target, and the raw ratios whose
// log and per-dependent forms are kept instead.
var excluded = map[string]bool{
	ColID: true, ColStatus: true, ColRatio: true, ColMonthlyRatio: true, ColSource: true,
}

// Predictors lists the model inputs of a prepared frame in column order.
func Predictors(f *frame.Frame) []string {
	var out []string
	for _, name := range f.Columns() {
		if !excluded[name] {
			out = append(out, name)
		}
	}
	return out
}

// Split separates a prepared frame back into its train and test rows.
func Split(f *frame.Frame) (train, test *frame.Frame, err error) {
	src, err := f.Strings(ColSource)
	if err != nil {
		return nil, nil, err
	}
	train = f.Filter(func(i int) bool { return src[i] == sourceTrain })
	test = f.Filter(func(i int) bool { return src[i] == sourceTest })
	return train, test, nil
}

// Describe writes an overview of the joined raw files: numeric summaries,
// missing cells per column and the frequencies of the categorical
// attributes.
func Describe(w io.Writer, cfg config.Loan) error {
	f, err := Load(cfg)
	if err != nil {
		return err
	}
	if err := f.WriteDescribe(w); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nMissing values")
	for _, mc := range f.MissingCounts() {
		fmt.Fprintf(w, "  %-20s %d\n", mc.Name, mc.Missing)
	}
	for _, name := range append([]string{ColStatus, ColCredit}, categoricals...) {
		counts, err := f.ValueCounts(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", name)
		for _, c := range counts {
			fmt.Fprintf(w, "  %-20s %d\n", c.Value, c.N)
		}
	}
	return nil
}
