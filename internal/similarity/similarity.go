// Package similarity implements cosine similarity and top-K ranking over
// dense embedding vectors. It is the single scoring path shared by the text
// retriever, the relational product fallback, and the image matcher, so every
// backend produces comparable scores.
//
// Dimension policy: a length mismatch between two vectors is always a loud
// *DimensionError, never a silent zero score. A mismatch means the stored
// vectors and the query were produced by different embedding models and every
// score computed from them would be meaningless.
package similarity

import (
	"fmt"
	"math"
	"sort"
)

// DimensionError reports a vector length mismatch between a query vector and
// a stored vector. It signals an embedding model inconsistency that requires
// re-embedding, not a recoverable runtime condition.
type DimensionError struct {
	// Want is the dimension of the first (query) vector.
	Want int
	// Got is the dimension of the mismatching vector.
	Got int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("similarity: dimension mismatch: %d vs %d", e.Want, e.Got)
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// If either vector has zero magnitude the result is 0 (guards divide-by-zero).
// Returns a *DimensionError when the vectors differ in length.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &DimensionError{Want: len(a), Got: len(b)}
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	return float32(dot / (math.Sqrt(magA) * math.Sqrt(magB))), nil
}

// Candidate is a scorable (id, vector) pair.
type Candidate struct {
	// ID identifies the candidate in the caller's domain (chunk ID, product ID).
	ID string
	// Vector is the candidate's embedding.
	Vector []float32
}

// Match is a ranked candidate with its similarity score.
type Match struct {
	// ID is the candidate's identifier.
	ID string
	// Score is the cosine similarity against the query vector.
	Score float32
}

// RankTopK scores every candidate against query and returns at most k matches
// sorted descending by score. Ties keep candidate insertion order (stable sort).
// Returns a *DimensionError if any candidate's vector length differs from the
// query's.
func RankTopK(query []float32, candidates []Candidate, k int) ([]Match, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		score, err := Cosine(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("similarity: candidate %s: %w", c.ID, err)
		}
		matches = append(matches, Match{ID: c.ID, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
