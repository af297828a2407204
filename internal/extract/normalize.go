package extract

import "strings"

// NormalizeFragments rebuilds a description from the children of its
// element: line breaks are dropped, links are replaced by their label, any
// other markup is kept in serialized form, and the pieces are joined with
// single spaces.
func NormalizeFragments(fragments []Fragment) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f.Kind == LineBreakFragment {
			continue
		}
		if s := Normalize(f.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Normalize collapses whitespace runs to a single space and trims the ends.
// It is idempotent.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
