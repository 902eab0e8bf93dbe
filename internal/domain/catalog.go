package domain

import (
	"slices"
	"strings"
)

// CategoryImageMap maps a category slug to an image reference (URL or data URI)
type CategoryImageMap map[string]string

// SubcategoryMap maps a category name to its ordered subcategory names
type SubcategoryMap map[string][]string

// Clone returns a copy that shares no memory with m
func (m CategoryImageMap) Clone() CategoryImageMap {
	out := make(CategoryImageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy that shares no memory with m
func (m SubcategoryMap) Clone() SubcategoryMap {
	out := make(SubcategoryMap, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// Removed lists the subcategories of category present in m but absent from next
func (m SubcategoryMap) Removed(category string, next []string) []string {
	var removed []string
	for _, name := range m[category] {
		if !slices.Contains(next, name) {
			removed = append(removed, name)
		}
	}
	return removed
}

// Slugify turns a category name into the slug used as a category image key
func Slugify(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "-")
}

// IsDataURI reports whether an image reference embeds its content
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}
