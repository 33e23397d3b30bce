package scraper

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

var (
	pricePattern = regexp.MustCompile(`\$?([\d,]+\.?\d*)`)
	sizePattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|kgs|g|gm|gms|gram|grams|lb|lbs|oz|ml|mls|l|litre|litres|liter|liters|pack|packs|pk|ct|count|pcs|pc|piece|pieces|ea|each|unit|units)`)
	strictPolicy = bluemonday.StrictPolicy()
)

// ParsePrice extracts the first amount from text like "$1,299.99" or "2.49 ea".
// Unparseable text yields an absent price.
func ParsePrice(text string) decimal.NullDecimal {
	text = strings.TrimSpace(text)
	if text == "" {
		return decimal.NullDecimal{}
	}
	m := pricePattern.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if m == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(m[1], "."))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ExtractSize returns the numeric part of the first size mention, e.g. "500" from "Milk 500ml"
func ExtractSize(text string) string {
	if m := sizePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// ExtractUnit returns the lowercased unit of the first size mention
func ExtractUnit(text string) string {
	if m := sizePattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[2])
	}
	return ""
}

// CategoryValue builds the "code:name" category hint understood by the matcher
func CategoryValue(id, name string) string {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	switch {
	case id == "":
		return name
	case name == "":
		return id
	}
	return id + ":" + name
}

// CleanText strips markup and entities from scraped text
func CleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strictPolicy.Sanitize(s))), " ")
}

// ---- dynamic JSON helpers ----

// dig walks nested maps and slices. Numeric path elements index slices.
func dig(v any, path ...string) any {
	cur := v
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[key]
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// digString returns the first non-empty string found at any of the paths
func digString(v any, paths ...[]string) string {
	for _, p := range paths {
		if s := asString(dig(v, p...)); s != "" {
			return s
		}
	}
	return ""
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// asPrice reads a JSON number or price string
func asPrice(v any) decimal.NullDecimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(t))
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case string:
		return ParsePrice(t)
	}
	return decimal.NullDecimal{}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func positive(p decimal.NullDecimal) bool {
	return p.Valid && p.Decimal.IsPositive()
}

func less(a, b decimal.NullDecimal) bool {
	return a.Valid && b.Valid && a.Decimal.LessThan(b.Decimal)
}
