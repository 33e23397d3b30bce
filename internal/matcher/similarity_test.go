package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Gala Apples", "gala apples!"))
	assert.Equal(t, 0.0, Similarity("", "apples"))
	assert.Equal(t, 0.0, Similarity("milk", "bread"))
	assert.InDelta(t, 0.25, Similarity("red gala apples", "gala pears"), 1e-9)
	assert.InDelta(t, 2.0/3.0, Similarity("gala apples", "gala apples bag"), 1e-9)
}
