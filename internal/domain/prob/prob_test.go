package prob

import (
	"math"
	"testing"

	"github.com/kailas-cloud/disagg/internal/domain/tensor"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestCombineValues(t *testing.T) {
	if got := CombineValues(); got != 0 {
		t.Errorf("empty combination = %v, want 0", got)
	}
	if got := CombineValues(0.5, 0.5); !approx(got, 0.75) {
		t.Errorf("0.5+0.5 = %v, want 0.75", got)
	}
	if got := CombineValues(1, 0.3); got != 1 {
		t.Errorf("certainty combined = %v, want 1", got)
	}
}

func TestCombine_CommutativeAssociative(t *testing.T) {
	a := tensor.FromData([]float64{0.1, 0.2}, 2)
	b := tensor.FromData([]float64{0.3, 0.4}, 2)
	c := tensor.FromData([]float64{0.5, 0.6}, 2)

	ab := Combine(a, b)
	ba := Combine(b, a)
	for i := range ab.Data() {
		if !approx(ab.Data()[i], ba.Data()[i]) {
			t.Fatal("combination is not commutative")
		}
	}

	left := Combine(Combine(a, b), c)
	right := Combine(a, Combine(b, c))
	for i := range left.Data() {
		if !approx(left.Data()[i], right.Data()[i]) {
			t.Fatal("combination is not associative")
		}
	}
}

func TestCombine_NilIdentity(t *testing.T) {
	a := tensor.FromData([]float64{0.1, 0.2}, 2)
	got := Combine(nil, a)
	if got == a {
		t.Error("identity must return a copy, not the argument")
	}
	for i := range got.Data() {
		if got.Data()[i] != a.Data()[i] {
			t.Fatal("nil is not the identity")
		}
	}
}

func TestAggregate(t *testing.T) {
	m := tensor.FromData([]float64{0.5, 0.5, 0}, 3)
	if got := Aggregate(m); !approx(got, 0.75) {
		t.Errorf("aggregate = %v, want 0.75", got)
	}
}

func TestProject_MarginalizesDroppedAxes(t *testing.T) {
	// (2, 2): combine along the second axis
	m := tensor.FromData([]float64{0.1, 0.2, 0, 0.5}, 2, 2)
	got := Project(m, 0)
	if !approx(got.At(0), CombineValues(0.1, 0.2)) {
		t.Errorf("row 0 = %v", got.At(0))
	}
	if !approx(got.At(1), CombineValues(0, 0.5)) {
		t.Errorf("row 1 = %v", got.At(1))
	}
}

func TestProject_SingleCellExact(t *testing.T) {
	// With one contributing cell, the marginal is 1-(1-p): every other
	// factor is exactly 1, so a dyadic p must survive unchanged.
	const p = 0.25
	m := tensor.New(2, 3, 2)
	m.Set(p, 1, 2, 0)

	got := Project(m, 1)
	if got.At(2) != p {
		t.Errorf("At(2) = %v, want exactly %v", got.At(2), p)
	}
	for i := 0; i < 3; i++ {
		if i != 2 && got.At(i) != 0 {
			t.Errorf("At(%d) = %v, want exactly 0", i, got.At(i))
		}
	}
}

func TestProject_PermutesAxes(t *testing.T) {
	m := tensor.FromData([]float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 2, 3)
	got := Project(m, 1, 0)
	dims := got.Dims()
	if dims[0] != 3 || dims[1] != 2 {
		t.Fatalf("dims = %v, want [3 2]", dims)
	}
	if got.At(2, 0) != 0.3 || got.At(0, 1) != 0.4 {
		t.Error("permutation moved the wrong cells")
	}
}

func TestProject_KeepAllIsIdentity(t *testing.T) {
	m := tensor.FromData([]float64{0.1, 0.2, 0.3, 0.4}, 2, 2)
	got := Project(m, 0, 1)
	for i := range got.Data() {
		if !approx(got.Data()[i], m.Data()[i]) {
			t.Fatal("keeping every axis must reproduce the input")
		}
	}
}

func TestMeanLastAxis(t *testing.T) {
	m := tensor.FromData([]float64{0.2, 0.4, 0.6, 0.8}, 2, 2)
	got := MeanLastAxis(m, []float64{0.25, 0.75})
	if !approx(got.At(0), 0.2*0.25+0.4*0.75) {
		t.Errorf("mean[0] = %v", got.At(0))
	}
	if !approx(got.At(1), 0.6*0.25+0.8*0.75) {
		t.Errorf("mean[1] = %v", got.At(1))
	}
}

func TestCollapseTRT(t *testing.T) {
	// (T=2, Ma=1, D=1, Lo=1, La=1, E=1)
	m := tensor.FromData([]float64{0.5, 0.5}, 2, 1, 1, 1, 1, 1)
	got := CollapseTRT(m)
	if got.Rank() != 5 {
		t.Fatalf("rank = %d, want 5", got.Rank())
	}
	if !approx(got.At(0, 0, 0, 0, 0), 0.75) {
		t.Errorf("collapsed = %v, want 0.75", got.At(0, 0, 0, 0, 0))
	}
}

func TestExtractPMF_Shapes(t *testing.T) {
	// (T=2, Ma=3, D=4, Lo=1, La=1, E=2)
	mat6 := tensor.New(2, 3, 4, 1, 1, 2)
	mat6.Set(0.3, 1, 2, 3, 0, 0, 1)
	agg5 := CollapseTRT(mat6)

	cases := map[string][]int{
		"Mag":          {3},
		"Dist":         {4},
		"Mag_Dist":     {3, 4},
		"Mag_Dist_Eps": {3, 4, 2},
		"Lon_Lat":      {1, 1},
		"Mag_Lon_Lat":  {3, 1, 1},
		"TRT":          {2},
		"Lon_Lat_TRT":  {1, 1, 2},
	}
	for name, wantDims := range cases {
		pmf, err := ExtractPMF(name, mat6, agg5)
		if err != nil {
			t.Fatalf("ExtractPMF(%s): %v", name, err)
		}
		dims := pmf.Dims()
		if len(dims) != len(wantDims) {
			t.Fatalf("%s dims = %v, want %v", name, dims, wantDims)
		}
		for i := range dims {
			if dims[i] != wantDims[i] {
				t.Fatalf("%s dims = %v, want %v", name, dims, wantDims)
			}
		}
		if !pmf.Any() {
			t.Errorf("%s lost the only contribution", name)
		}
	}

	if _, err := ExtractPMF("Banana", mat6, agg5); err == nil {
		t.Fatal("expected error for an unknown PMF name")
	}
}

func TestExtractPMF_TRTKeepingUsesRawMatrix(t *testing.T) {
	mat6 := tensor.New(2, 1, 1, 1, 1, 1)
	mat6.Set(0.3, 0, 0, 0, 0, 0, 0)
	mat6.Set(0.6, 1, 0, 0, 0, 0, 0)
	agg5 := CollapseTRT(mat6)

	pmf, err := ExtractPMF("TRT", mat6, agg5)
	if err != nil {
		t.Fatalf("ExtractPMF: %v", err)
	}
	if pmf.At(0) != 0.3 || pmf.At(1) != 0.6 {
		t.Errorf("TRT PMF = %v, want the per-TRT values", pmf.Data())
	}
}
