package dataprep

import (
	"math"
	"strings"
	"testing"

	"predkit/pkg/frame"
	"predkit/pkg/stats"
)

const loans = `Self_Employed,Education,LoanAmount,Credit_History
No,Graduate,100,1
No,Graduate,,0
No,Graduate,140,1
No,Not Graduate,90,
Yes,Graduate,200,1
Yes,Graduate,,1
,Graduate,,1
No,Not Graduate,,0
Yes,Not Graduate,,1
`

func read(t *testing.T, s string) *frame.Frame {
	t.Helper()
	f, err := frame.Read(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFillString(t *testing.T) {
	f := read(t, loans)
	n, err := FillString(f, "Self_Employed", "No")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("filled %d, want 1", n)
	}
	v, _ := f.Strings("Self_Employed")
	if v[6] != "No" {
		t.Errorf("row 6 = %q, want No", v[6])
	}
}

func TestGroupedMedianImputation(t *testing.T) {
	f := read(t, loans)
	if _, err := FillString(f, "Self_Employed", "No"); err != nil {
		t.Fatal(err)
	}
	amount, _ := f.Numeric("LoanAmount")
	wasMissing := make([]bool, len(amount))
	for i, x := range amount {
		wasMissing[i] = math.IsNaN(x)
	}

	table, err := GroupedMedian(f, "LoanAmount", "Self_Employed", "Education")
	if err != nil {
		t.Fatal(err)
	}
	for key, want := range map[GroupKey]float64{
		{"No", "Graduate"}:     120,
		{"No", "Not Graduate"}: 90,
		{"Yes", "Graduate"}:    200,
	} {
		got, ok := table.Lookup(key.Row, key.Col)
		if !ok || got != want {
			t.Errorf("median %v = %v (observed %v), want %v", key, got, ok, want)
		}
	}
	if _, ok := table.Lookup("Yes", "Not Graduate"); ok {
		t.Error("unobserved pair reported as observed")
	}

	if _, err := FillGroupedMedian(f, table); err != nil {
		t.Fatal(err)
	}

	// every imputed value equals the median of observed values sharing its pair
	self, _ := f.Strings("Self_Employed")
	edu, _ := f.Strings("Education")
	orig := read(t, loans)
	origAmount, _ := orig.Numeric("LoanAmount")
	for i := range amount {
		if !wasMissing[i] {
			continue
		}
		var group []float64
		for j, x := range origAmount {
			if !math.IsNaN(x) && self[j] == self[i] && edu[j] == edu[i] {
				group = append(group, x)
			}
		}
		want := stats.Median(group)
		if len(group) == 0 {
			want = table.Overall
		}
		if amount[i] != want {
			t.Errorf("row %d imputed %v, want %v", i, amount[i], want)
		}
	}
}

func TestLabelEncoderSortsClasses(t *testing.T) {
	e := FitLabelEncoder([]string{"Urban", "Rural", "Semiurban", "Rural"})
	if got := strings.Join(e.Classes, ","); got != "Rural,Semiurban,Urban" {
		t.Errorf("Classes = %s", got)
	}
	codes, err := e.Transform([]string{"Urban", "Rural"})
	if err != nil {
		t.Fatal(err)
	}
	if codes[0] != 2 || codes[1] != 0 {
		t.Errorf("codes = %v, want [2 0]", codes)
	}
	if _, err := e.Transform([]string{"Moon"}); err == nil {
		t.Error("unseen category should fail")
	}
}

func TestOneHotNumericColumn(t *testing.T) {
	f := read(t, loans)
	if _, err := FillNumeric(f, "Credit_History", 2); err != nil {
		t.Fatal(err)
	}
	names, err := OneHot(f, "Credit_History")
	if err != nil {
		t.Fatal(err)
	}
	want := "Credit_History_0.0,Credit_History_1.0,Credit_History_2.0"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("names = %s, want %s", got, want)
	}
	if f.Has("Credit_History") {
		t.Error("source column kept")
	}
	if f.Position("Credit_History_0.0") != 3 {
		t.Errorf("dummies should take the source position, got %d", f.Position("Credit_History_0.0"))
	}
	two, _ := f.Numeric("Credit_History_2.0")
	one, _ := f.Numeric("Credit_History_1.0")
	if two[3] != 1 || one[3] != 0 || one[0] != 1 {
		t.Errorf("indicators wrong: one=%v two=%v", one, two)
	}
}

func TestDerivedFeatures(t *testing.T) {
	f := read(t, "a,b\n1,4\n2,8\n")
	if err := Sum(f, "a", "b", "s"); err != nil {
		t.Fatal(err)
	}
	if err := Ratio(f, "a", "b", "r"); err != nil {
		t.Fatal(err)
	}
	if err := Log(f, "b", "lb"); err != nil {
		t.Fatal(err)
	}
	s, _ := f.Numeric("s")
	r, _ := f.Numeric("r")
	lb, _ := f.Numeric("lb")
	if s[1] != 10 || r[0] != 0.25 || math.Abs(lb[0]-math.Log(4)) > 1e-12 {
		t.Errorf("s=%v r=%v lb=%v", s, r, lb)
	}
}
