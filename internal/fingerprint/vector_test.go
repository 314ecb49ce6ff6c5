package fingerprint

import (
	"math"
	"math/rand"
	"testing"

	"github.com/marinewatch/marine/internal/domain"
)

const tolerance = 1e-9

// TestFromHashesDimensionAndNorm verifies that aggregation always yields a
// vector of exactly the requested dimension with unit L2 norm (or zero norm
// for all-zero input).
func TestFromHashesDimensionAndNorm(t *testing.T) {
	testCases := []struct {
		name     string
		hashes   []string
		dim      int
		wantNorm float64
	}{
		{
			name:     "single 16-digit hash at dim 64",
			hashes:   []string{"d1c2b3a495867708"},
			dim:      64,
			wantNorm: 1,
		},
		{
			name:     "multiple hashes at dim 64",
			hashes:   []string{"ffffffffffffffff", "0000000000000001", "8899aabbccddeeff"},
			dim:      64,
			wantNorm: 1,
		},
		{
			name:     "short hash right-padded to dim 128",
			hashes:   []string{"ab"},
			dim:      128,
			wantNorm: 1,
		},
		{
			name:     "long hash truncated to dim 8",
			hashes:   []string{"d1c2b3a495867708"},
			dim:      8,
			wantNorm: 1,
		},
		{
			name:     "all-zero hashes keep zero norm",
			hashes:   []string{"0000000000000000", "0000000000000000"},
			dim:      64,
			wantNorm: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			vec, err := FromHashes(tc.hashes, tc.dim)
			if err != nil {
				t.Fatalf("FromHashes returned error: %v", err)
			}
			if len(vec) != tc.dim {
				t.Errorf("dimension mismatch: got %d, want %d", len(vec), tc.dim)
			}
			if got := Norm(vec); math.Abs(got-tc.wantNorm) > tolerance {
				t.Errorf("norm mismatch: got %v, want %v", got, tc.wantNorm)
			}
		})
	}
}

// TestFromHashesOrderIndependence verifies the aggregation is invariant
// under permutation of the input hash list.
func TestFromHashesOrderIndependence(t *testing.T) {
	hashes := []string{
		"d1c2b3a495867708",
		"0123456789abcdef",
		"fedcba9876543210",
		"00ff00ff00ff00ff",
	}

	want, err := FromHashes(hashes, domain.VisualDim)
	if err != nil {
		t.Fatalf("FromHashes returned error: %v", err)
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]string(nil), hashes...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got, err := FromHashes(shuffled, domain.VisualDim)
		if err != nil {
			t.Fatalf("FromHashes returned error: %v", err)
		}
		for j := range want {
			if math.Abs(got[j]-want[j]) > tolerance {
				t.Fatalf("component %d differs after shuffle: got %v, want %v", j, got[j], want[j])
			}
		}
	}
}

// TestFromHashesValidation verifies the error cases.
func TestFromHashesValidation(t *testing.T) {
	testCases := []struct {
		name   string
		hashes []string
		dim    int
	}{
		{name: "empty hash list", hashes: nil, dim: 64},
		{name: "zero dimension", hashes: []string{"ab"}, dim: 0},
		{name: "non-hex digit", hashes: []string{"xyz"}, dim: 64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromHashes(tc.hashes, tc.dim); !domain.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

// TestHashBitExpansion verifies the MSB-first hex digit expansion against a
// hand-computed example.
func TestHashBitExpansion(t *testing.T) {
	// "a5" = 1010 0101
	vec, err := FromHashes([]string{"a5"}, 8)
	if err != nil {
		t.Fatalf("FromHashes returned error: %v", err)
	}
	want := []float64{1, 0, 1, 0, 0, 1, 0, 1}
	norm := math.Sqrt(4)
	for i := range want {
		if math.Abs(vec[i]-want[i]/norm) > tolerance {
			t.Errorf("bit %d: got %v, want %v", i, vec[i], want[i]/norm)
		}
	}
}

// TestCosine verifies symmetry, bounds, and the self-similarity identity.
func TestCosine(t *testing.T) {
	a := domain.Vector{1, 0, 0, 0}
	b := domain.Vector{0, 1, 0, 0}
	c := domain.Vector{1, 1, 0, 0}
	neg := domain.Vector{-1, 0, 0, 0}
	zero := domain.Vector{0, 0, 0, 0}

	if got := Cosine(a, b); got != 0 {
		t.Errorf("orthogonal similarity: got %v, want 0", got)
	}
	if got, want := Cosine(a, c), Cosine(c, a); math.Abs(got-want) > tolerance {
		t.Errorf("similarity not symmetric: %v vs %v", got, want)
	}
	if got := Cosine(a, a); math.Abs(got-100) > tolerance {
		t.Errorf("self similarity: got %v, want 100", got)
	}
	if got := Cosine(a, neg); math.Abs(got+100) > tolerance {
		t.Errorf("opposite similarity: got %v, want -100", got)
	}
	if got := Cosine(a, zero); got != 0 {
		t.Errorf("zero-norm similarity: got %v, want 0", got)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		x := make(domain.Vector, 16)
		y := make(domain.Vector, 16)
		for j := range x {
			x[j] = rng.NormFloat64()
			y[j] = rng.NormFloat64()
		}
		sim := Cosine(x, y)
		if sim < -100-tolerance || sim > 100+tolerance {
			t.Fatalf("similarity out of bounds: %v", sim)
		}
		if back := Cosine(y, x); math.Abs(sim-back) > tolerance {
			t.Fatalf("similarity not symmetric: %v vs %v", sim, back)
		}
	}
}
