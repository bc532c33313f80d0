package vecmath

import (
	"math"
	"testing"
)

func oneHot(n, i int) []float32 {
	v := Zero(n)
	v[i] = 1
	return v
}

func TestCosineToUnit(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0.5, 1: 1}
	for in, want := range cases {
		if got := CosineToUnit(in); got != want {
			t.Errorf("CosineToUnit(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	z := Zero(Dim)
	got := Normalize(z)
	if len(got) != Dim {
		t.Fatalf("len = %d, want %d", len(got), Dim)
	}
	for i, x := range got {
		if x != 0 {
			t.Fatalf("component %d = %v, want 0", i, x)
		}
	}
}

func TestNormalize_UnitLength(t *testing.T) {
	v := []float32{3, 4}
	got := Normalize(v)
	if math.Abs(Norm(got)-1) > 1e-6 {
		t.Errorf("Norm(Normalize(v)) = %v, want 1", Norm(got))
	}
	if v[0] != 3 {
		t.Error("Normalize mutated its input")
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	if got := Cosine(oneHot(4, 1), Zero(4)); got != 0 {
		t.Errorf("Cosine against zero = %v, want 0", got)
	}
	if got := Cosine(oneHot(4, 1), oneHot(3, 1)); got != 0 {
		t.Errorf("Cosine across lengths = %v, want 0", got)
	}
}

func TestCosine_OneHot(t *testing.T) {
	a := oneHot(Dim, 0)
	if got := Cosine(a, a); math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine(a, a) = %v, want 1", got)
	}
	if got := Cosine(a, oneHot(Dim, 1)); math.Abs(got) > 1e-6 {
		t.Errorf("Cosine(orthogonal) = %v, want 0", got)
	}
}

func TestBlend(t *testing.T) {
	acc := Zero(3)
	acc = Blend(acc, oneHot(3, 0), 0.5)
	if math.Abs(float64(acc[0])-1) > 1e-6 {
		t.Fatalf("first blend from zero should land on the input direction, got %v", acc)
	}

	acc = Blend(acc, oneHot(3, 1), 0.5)
	if math.Abs(float64(acc[0]-acc[1])) > 1e-6 {
		t.Errorf("equal blend should weigh both axes equally, got %v", acc)
	}
	if math.Abs(Norm(acc)-1) > 1e-6 {
		t.Errorf("blend result not unit length: %v", Norm(acc))
	}
}

func TestBlend_OrderMatters(t *testing.T) {
	a, b := oneHot(2, 0), oneHot(2, 1)
	ab := Blend(Blend(Zero(2), a, 0.5), b, 0.25)
	ba := Blend(Blend(Zero(2), b, 0.25), a, 0.5)
	if math.Abs(float64(ab[0]-ba[0])) < 1e-3 {
		t.Errorf("expected order-dependent result, got %v and %v", ab, ba)
	}
}
