package sync

import (
	"sort"
	"strconv"

	"github.com/schaermu/dfoursync/internal/domain"
)

// DiffKind tags a structural difference between the two sides
type DiffKind string

const (
	// DiffAdded is a name present locally only
	DiffAdded DiffKind = "added"
	// DiffRemoved is a name present remotely only
	DiffRemoved DiffKind = "removed"
	// DiffChanged is a name present on both sides with differing fields
	DiffChanged DiffKind = "changed"
)

// Compared snapshot fields
const (
	FieldHash      = "hash"
	FieldTopic     = "topic"
	FieldBfsNumber = "bfsNumber"
	FieldTitle     = "title"
)

// Difference is one structural difference for a name
type Difference struct {
	Kind   DiffKind
	Name   string
	Fields []string // differing fields of a changed name
}

// HasField returns true if field is among the differing fields
func (d Difference) HasField(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Diff compares the remote and local mappings. The result is sorted by name
// and does not depend on map iteration order.
func Diff(remote, local map[string]domain.Snapshot) []Difference {
	var diffs []Difference

	for name, l := range local {
		r, ok := remote[name]
		if !ok {
			diffs = append(diffs, Difference{Kind: DiffAdded, Name: name})
			continue
		}
		if fields := changedFields(r, l); len(fields) > 0 {
			diffs = append(diffs, Difference{Kind: DiffChanged, Name: name, Fields: fields})
		}
	}
	for name := range remote {
		if _, ok := local[name]; !ok {
			diffs = append(diffs, Difference{Kind: DiffRemoved, Name: name})
		}
	}

	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].Name < diffs[j].Name
	})
	return diffs
}

func changedFields(remote, local domain.Snapshot) []string {
	var fields []string
	compare := []struct {
		field string
		a, b  string
	}{
		{FieldHash, remote.Hash, local.Hash},
		{FieldTopic, remote.Topic, local.Topic},
		{FieldBfsNumber, strconv.Itoa(remote.BfsNumber), strconv.Itoa(local.BfsNumber)},
		{FieldTitle, remote.Title, local.Title},
	}
	for _, c := range compare {
		if c.a != c.b {
			fields = append(fields, c.field)
		}
	}
	return fields
}
