package reconcile

import "github.com/shuryanc/cloudsync/internal/canon"

// Side identifies which side of a sync a clash was observed on.
type Side int

const (
	SideLocal Side = iota
	SideRemote
)

func (s Side) String() string {
	if s == SideRemote {
		return "remote"
	}
	return "local"
}

// ClashRecord is one reported clash: two or more siblings on the same
// side canonicalize to the same name (spec.md §4.6.2).
type ClashRecord struct {
	ParentPath string
	Side       Side
	Names      []string
}

// ClashRegistry tracks active clashes per (parentPath, side), retained
// until the Reconciler observes the duplicate removed. It is retrievable
// through the public "list conflicts" interface (spec.md §4.6.2).
type ClashRegistry struct {
	records map[clashKey]*ClashRecord
}

type clashKey struct {
	parentPath string
	side       Side
}

func NewClashRegistry() *ClashRegistry {
	return &ClashRegistry{records: make(map[clashKey]*ClashRecord)}
}

// DetectClashes groups names by their canonicalized comparator and
// records any group with more than one member. Any previously recorded
// clash at this (parentPath, side) that no longer has duplicates is
// cleared automatically.
func (r *ClashRegistry) DetectClashes(parentPath string, side Side, names []string) []string {
	groups := make(map[string][]string)
	for _, n := range names {
		key := canonicalKey(side, n)
		groups[key] = append(groups[key], n)
	}

	var clashing []string
	for _, group := range groups {
		if len(group) > 1 {
			clashing = append(clashing, group...)
		}
	}

	k := clashKey{parentPath: parentPath, side: side}
	if len(clashing) == 0 {
		delete(r.records, k)
		return nil
	}
	r.records[k] = &ClashRecord{ParentPath: parentPath, Side: side, Names: clashing}
	return clashing
}

// canonicalKey buckets names by ASCII lowercase when canon.Compare is
// case-insensitive and by exact bytes otherwise, so case variants land
// in the same group only on case-insensitive platforms; no Unicode
// normalization is applied. On the local side it also runs the
// name through canon.Decode first: two distinct on-disk names can
// decode to the same cloud name (e.g. "f0" and the escaped "f%30", both
// decoding to "f0"), and that is a clash even though the literal local
// names differ. canon.Decode is a no-op on names with no %XX escapes,
// so already-decoded names group the same way as before.
func canonicalKey(side Side, name string) string {
	if side == SideLocal {
		name = canon.Decode(name)
	}
	if caseInsensitiveCompare {
		return toLowerASCII(name)
	}
	return name
}

// caseInsensitiveCompare mirrors canon's platform comparator choice; it
// is read once via a package-level probe rather than re-exporting
// canon's internal build-tag constant.
var caseInsensitiveCompare = canon.Compare("A", "a")

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Conflicts returns every currently active clash record. This backs the
// public "list conflicts" interface of spec.md §4.6.2.
func (r *ClashRegistry) Conflicts() []ClashRecord {
	out := make([]ClashRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}
