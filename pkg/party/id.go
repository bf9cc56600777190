// Package party defines node identifiers shared across every protocol
// layer.
package party

import (
	"sort"
	"strconv"

	"github.com/noospheer/liun/pkg/field"
)

// ID identifies a single Liun node. Per §3, node identifiers are distinct
// nonzero field elements, conventionally 1, 2, 3, .... ID is represented
// as its decimal string so it composes cleanly as a map key and wire
// value while still denoting a field element.
type ID string

// NewID builds an ID from a positive integer, by convention 1, 2, 3, ....
func NewID(n uint64) ID {
	return ID(strconv.FormatUint(n, 10))
}

// Element returns the field element this ID denotes.
func (id ID) Element() (field.Element, error) {
	n, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0, err
	}
	e := field.New(n)
	if e.IsZero() {
		return 0, field.ErrInvalidInput
	}
	return e, nil
}

// String returns the identifier's string form.
func (id ID) String() string {
	return string(id)
}

// IDSlice is a sortable, de-duplicatable collection of IDs.
type IDSlice []ID

func (s IDSlice) Len() int           { return len(s) }
func (s IDSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s IDSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Sorted returns a sorted copy.
func (s IDSlice) Sorted() IDSlice {
	out := make(IDSlice, len(s))
	copy(out, s)
	sort.Sort(out)
	return out
}

// Contains reports whether id appears in the slice.
func (s IDSlice) Contains(id ID) bool {
	for _, x := range s {
		if x == id {
			return true
		}
	}
	return false
}

// Remove returns a copy of s with id removed, if present.
func (s IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(s))
	for _, x := range s {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Elements converts every ID in the slice to its field element, in order.
func (s IDSlice) Elements() ([]field.Element, error) {
	out := make([]field.Element, 0, len(s))
	for _, id := range s {
		e, err := id.Element()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
