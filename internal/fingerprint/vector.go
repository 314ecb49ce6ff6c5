// Package fingerprint implements the vector aggregation that turns an
// ordered list of per-frame perceptual hash strings into one fixed-dimension
// fingerprint vector, and the cosine similarity used to compare vectors.
package fingerprint

import (
	"math"

	"github.com/marinewatch/marine/internal/domain"
)

// FromHashes aggregates per-frame hex hash strings into one L2-normalized
// vector of dimension dim.
//
// Each hash is expanded to bits (hex digit -> 4 bits, most significant bit
// first), converted to 0.0/1.0 floats and right-padded with zeros or
// truncated to exactly dim components. The per-frame vectors are averaged
// element-wise and the mean is divided by its Euclidean norm; a zero mean
// stays all-zero. The mean makes the result independent of frame order.
//
// Parameters:
//   - hashes: ordered per-frame hex hash strings; must be non-empty.
//   - dim: target vector dimension; must be positive.
// Returns:
//   - domain.Vector: normalized fingerprint vector of length dim.
//   - error: ValidationError on empty input, bad dimension, or a non-hex
//     digit in any hash.
func FromHashes(hashes []string, dim int) (domain.Vector, error) {
	if dim <= 0 {
		return nil, domain.NewValidationError("vector dimension must be positive, got %d", dim)
	}
	if len(hashes) == 0 {
		return nil, domain.NewValidationError("no keyframe hashes to aggregate")
	}

	sum := make([]float64, dim)
	for _, h := range hashes {
		bits, err := hashBits(h, dim)
		if err != nil {
			return nil, err
		}
		for i, b := range bits {
			sum[i] += b
		}
	}

	n := float64(len(hashes))
	mean := make(domain.Vector, dim)
	for i := range sum {
		mean[i] = sum[i] / n
	}

	return Normalize(mean), nil
}

// hashBits expands one hex hash string to a bit vector of length dim,
// right-padded with zeros or truncated.
func hashBits(hash string, dim int) ([]float64, error) {
	bits := make([]float64, dim)
	pos := 0
	for _, r := range hash {
		if pos >= dim {
			break
		}
		v, err := hexDigit(r)
		if err != nil {
			return nil, err
		}
		for shift := 3; shift >= 0 && pos < dim; shift-- {
			bits[pos] = float64((v >> uint(shift)) & 1)
			pos++
		}
	}
	return bits, nil
}

func hexDigit(r rune) (int, error) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), nil
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, nil
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, nil
	}
	return 0, domain.NewValidationError("invalid hex digit %q in hash", r)
}

// Normalize divides v by its Euclidean norm. A zero vector is returned
// unchanged rather than dividing by zero.
func Normalize(v domain.Vector) domain.Vector {
	norm := Norm(v)
	if norm == 0 {
		return v
	}
	out := make(domain.Vector, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Norm returns the Euclidean (L2) norm of v.
func Norm(v domain.Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b scaled to a percentage:
// (dot(a,b) / (|a|*|b|)) * 100. If either norm is zero the similarity is
// defined as 0. Vectors of unequal length are compared over the shorter
// prefix; callers are expected to pass same-dimension vectors.
func Cosine(a, b domain.Vector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb) * 100
}
