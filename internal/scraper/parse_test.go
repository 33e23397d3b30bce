package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"$4.99", "4.99", true},
		{"$1,299.99", "1299.99", true},
		{"2.49 ea", "2.49", true},
		{"12", "12", true},
		{"", "", false},
		{"call for price", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParsePrice(tt.in)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, got.Decimal.String())
			}
		})
	}
}

func TestExtractSizeAndUnit(t *testing.T) {
	tests := []struct {
		in, size, unit string
	}{
		{"Natrel Milk 2L", "2", "l"},
		{"Gala Apples 1.5 KG bag", "1.5", "kg"},
		{"Yogurt 12 x 100g", "100", "g"},
		{"Eggs 12 ct", "12", "ct"},
		{"Bananas", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.size, ExtractSize(tt.in))
			assert.Equal(t, tt.unit, ExtractUnit(tt.in))
		})
	}
}

func TestCategoryValue(t *testing.T) {
	assert.Equal(t, "2876:Bakery", CategoryValue("2876", "Bakery"))
	assert.Equal(t, "Bakery", CategoryValue("", "Bakery"))
	assert.Equal(t, "2876", CategoryValue("2876", ""))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Save $2 on 2", CleanText("<b>Save&nbsp;$2</b>  on <i>2</i>"))
	assert.Equal(t, "", CleanText("   "))
}

func TestDig(t *testing.T) {
	v := map[string]any{
		"a": []any{map[string]any{"b": "x"}},
	}
	assert.Equal(t, "x", dig(v, "a", "0", "b"))
	assert.Nil(t, dig(v, "a", "3", "b"))
	assert.Nil(t, dig(v, "missing", "b"))
}
