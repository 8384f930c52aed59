package kernel

import "testing"

func TestCosineIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	got := Cosine(v, v)
	if got < 0.9999999 || got > 1.0000001 {
		t.Fatalf("Cosine(v, v) = %v, want ~1", got)
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0.7, 0.7, 0}
	if Cosine(a, b) != Cosine(b, a) {
		t.Fatalf("Cosine is not commutative: %v vs %v", Cosine(a, b), Cosine(b, a))
	}
}

func TestCosineZeroCases(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
	}{
		{"empty a", nil, []float32{1, 2}},
		{"empty b", []float32{1, 2}, nil},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}},
		{"zero norm a", []float32{0, 0}, []float32{1, 2}},
		{"zero norm b", []float32{1, 2}, []float32{0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cosine(tc.a, tc.b); got != 0 {
				t.Fatalf("Cosine(%v, %v) = %v, want 0", tc.a, tc.b, got)
			}
		})
	}
}

func TestCosineRange(t *testing.T) {
	a := []float32{1, -2, 3, -4}
	b := []float32{-1, 2, 1, 0}
	got := Cosine(a, b)
	if got < -1 || got > 1 {
		t.Fatalf("Cosine(%v, %v) = %v, out of [-1, 1]", a, b, got)
	}
}

func TestCosineLargeMagnitude(t *testing.T) {
	a := []float32{1e10, 1e10}
	b := []float32{1e10, 1e10}
	got := Cosine(a, b)
	if got < 0.999 || got > 1.001 {
		t.Fatalf("Cosine with large magnitude inputs = %v, want ~1", got)
	}
}
