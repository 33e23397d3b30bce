package matcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"grocery-price/internal/model"
	"grocery-price/internal/store"

	"github.com/google/uuid"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s and joins its alphanumeric runs with dashes
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// splitCategory reads a "code:name" hint. Free text becomes its own slug.
func splitCategory(hint string) (code, name string) {
	hint = strings.TrimSpace(hint)
	if i := strings.Index(hint, ":"); i > 0 {
		code = strings.TrimSpace(hint[:i])
		name = strings.TrimSpace(hint[i+1:])
		if name == "" {
			name = code
		}
		return code, name
	}
	return Slugify(hint), hint
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// resolveCategory returns the id of the store-scoped category named by hint,
// creating it when missing. A category stored under a bare numeric name is
// renamed once a real name shows up.
func (m *Matcher) resolveCategory(ctx context.Context, hint string, st *model.Store) (string, error) {
	code, name := splitCategory(hint)
	if code == "" {
		return "", nil
	}

	c, err := m.repo.FindCategory(ctx, st.ID, code)
	switch {
	case err == nil:
		if isDigits(c.Name) && !isDigits(name) {
			c.Name = name
			if err := m.repo.SaveCategory(ctx, c); err != nil {
				return "", fmt.Errorf("rename category %s: %w", code, err)
			}
		}
		return c.ID, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("find category %s: %w", code, err)
	}

	c = &model.Category{
		ID:      uuid.NewString(),
		Name:    name,
		Code:    code,
		StoreID: st.ID,
	}
	if err := m.repo.SaveCategory(ctx, c); err != nil {
		return "", fmt.Errorf("create category %s: %w", code, err)
	}
	return c.ID, nil
}
