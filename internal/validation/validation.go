// Package validation compares an operator output against a reference output.
package validation

import (
	"fmt"
	"math"
)

// Report summarizes how closely an output matches its reference.
type Report struct {
	Similarity float64 // cosine similarity in [-1, 1]
	SQNR       float64 // signal power over noise power
	MaxAbsDiff float64
}

// Passed reports whether the similarity reaches threshold.
func (r Report) Passed(threshold float64) bool {
	return r.Similarity >= threshold
}

// String formats the report for logs.
func (r Report) String() string {
	return fmt.Sprintf("similarity=%.6f sqnr=%.4g max_abs_diff=%.4g", r.Similarity, r.SQNR, r.MaxAbsDiff)
}

// Compare computes every metric. expected and actual must have equal length.
func Compare(expected, actual []float32) Report {
	return Report{
		Similarity: CosineSimilarity(expected, actual),
		SQNR:       SQNR(expected, actual),
		MaxAbsDiff: MaxAbsDiff(expected, actual),
	}
}

// CosineSimilarity returns u·v / (|u||v|) in float64. Two zero vectors are
// identical (1); one zero vector is dissimilar (0).
func CosineSimilarity(u, v []float32) float64 {
	mustMatch(u, v)
	var dot, uu, vv float64
	for i := range u {
		a, b := float64(u[i]), float64(v[i])
		dot += a * b
		uu += a * a
		vv += b * b
	}
	norm := math.Sqrt(uu) * math.Sqrt(vv)
	if norm == 0 {
		if uu == 0 && vv == 0 {
			return 1
		}
		return 0
	}
	return dot / norm
}

// SQNR returns Σexpected² / (Σ(expected−actual)² + 1e-15).
func SQNR(expected, actual []float32) float64 {
	mustMatch(expected, actual)
	var signal, noise float64
	for i := range expected {
		e := float64(expected[i])
		n := e - float64(actual[i])
		signal += e * e
		noise += n * n
	}
	return signal / (noise + 1e-15)
}

// MaxAbsDiff returns the largest elementwise absolute difference.
func MaxAbsDiff(expected, actual []float32) float64 {
	mustMatch(expected, actual)
	var m float64
	for i := range expected {
		m = max(m, math.Abs(float64(expected[i])-float64(actual[i])))
	}
	return m
}

func mustMatch(a, b []float32) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("validation: length mismatch %d vs %d", len(a), len(b)))
	}
}
