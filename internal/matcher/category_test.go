package matcher

import (
	"context"
	"testing"

	"grocery-price/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "dairy-eggs", Slugify("Dairy & Eggs"))
	assert.Equal(t, "fresh-fruits", Slugify("  Fresh Fruits "))
	assert.Equal(t, "", Slugify("&&"))
}

func TestSplitCategory(t *testing.T) {
	code, name := splitCategory("2877:Fruits")
	assert.Equal(t, "2877", code)
	assert.Equal(t, "Fruits", name)

	code, name = splitCategory("Dairy & Eggs")
	assert.Equal(t, "dairy-eggs", code)
	assert.Equal(t, "Dairy & Eggs", name)

	code, name = splitCategory("30682:")
	assert.Equal(t, "30682", code)
	assert.Equal(t, "30682", name)
}

func TestResolveCategoryRepairsNumericName(t *testing.T) {
	m, repo := newMatcher(t)
	ctx := context.Background()

	first, err := m.resolveCategory(ctx, "30682", tnt)
	require.NoError(t, err)

	second, err := m.resolveCategory(ctx, "30682:Fresh Fruit", tnt)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	c, err := repo.FindCategory(ctx, tnt.ID, "30682")
	require.NoError(t, err)
	assert.Equal(t, "Fresh Fruit", c.Name)
}

func TestResolveCategoryIsStoreScoped(t *testing.T) {
	m, _ := newMatcher(t)
	ctx := context.Background()

	a, err := m.resolveCategory(ctx, "Bakery", tnt)
	require.NoError(t, err)
	b, err := m.resolveCategory(ctx, "Bakery", &model.Store{ID: "s-other", Code: "OTHER"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	empty, err := m.resolveCategory(ctx, "", tnt)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
