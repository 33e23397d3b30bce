package matcher

import (
	"strings"

	"grocery-price/internal/model"
)

// Similarity is the Jaccard index of the word sets of two normalized names.
// It is a diagnostic and plays no part in Resolve.
func Similarity(a, b string) float64 {
	na, nb := model.NormalizeName(a), model.NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	setA := make(map[string]struct{})
	for _, w := range strings.Fields(na) {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, w := range strings.Fields(nb) {
		setB[w] = struct{}{}
	}

	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
