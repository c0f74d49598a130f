package canon

import "strings"

// Compare reports whether a and b would be treated as the same entry by
// the local filesystem, i.e. whether they constitute a name clash
// (spec.md §4.1 "Comparison"). On case-insensitive platforms (see
// compare_*.go) it uses strings.EqualFold; elsewhere it compares bytes
// exactly. No Unicode normalization is applied, so the NFC and NFD forms
// of one name are not reported as the same entry.
func Compare(a, b string) bool {
	if caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}
