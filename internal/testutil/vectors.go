package testutil

import "math"

// MakeBasisVector returns a unit vector with 1.0 at the given axis.
// Two different axes have cosine similarity 0.
func MakeBasisVector(dim, axis int) []float32 {
	vec := make([]float32, dim)
	vec[axis%dim] = 1.0
	return vec
}

// MakeVectorWithAngle returns a unit vector at the given angle (radians)
// from the first basis vector, rotated in the plane of the first two axes.
// cos(angle) is the cosine similarity to MakeVectorWithAngle(dim, 0).
func MakeVectorWithAngle(dim int, angle float64) []float32 {
	vec := make([]float32, dim)
	vec[0] = float32(math.Cos(angle))
	vec[1] = float32(math.Sin(angle))
	return vec
}
