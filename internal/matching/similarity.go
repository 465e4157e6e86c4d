package matching

import (
	"math"
	"sort"
)

// DefaultThreshold is the minimum cosine similarity for a pair to be ranked.
const DefaultThreshold = 0.18

// Cosine returns dot(a,b) / (|a||b|) over the first min(len(a), len(b))
// components. It is 0 when either truncated vector has zero magnitude.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, aSq, bSq float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		aSq += x * x
		bSq += y * y
	}
	if aSq == 0 || bSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aSq) * math.Sqrt(bSq))
}

// CanonicalPair orders two person ids so that (a,b) and (b,a) yield the same pair.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Ranked is a member eligible for ranking: an id plus a non-empty vector.
type Ranked struct {
	ID     string
	Vector []float32
}

// Candidate is one unordered pair with its similarity. A and B are the
// canonical order of the two ids; IndexA and IndexB point back into the
// slice passed to Rank.
type Candidate struct {
	A, B           string
	IndexA, IndexB int
	Similarity     float64
}

// Rank enumerates every unordered pair once, keeps those with similarity
// >= threshold, and sorts them by similarity descending. Ties fall back to
// the canonical pair ids so the order is deterministic.
func Rank(members []Ranked, threshold float64) []Candidate {
	if len(members) < 2 {
		return nil
	}
	var out []Candidate
	for i := 0; i < len(members); i++ {
		for k := i + 1; k < len(members); k++ {
			sim := Cosine(members[i].Vector, members[k].Vector)
			if sim < threshold {
				continue
			}
			c := Candidate{IndexA: i, IndexB: k, Similarity: sim}
			c.A, c.B = CanonicalPair(members[i].ID, members[k].ID)
			if c.A != members[i].ID {
				c.IndexA, c.IndexB = k, i
			}
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}
