package sync

import (
	"path/filepath"
	"time"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/domain"
)

// Classify turns differences into directional changes. Content changes are
// resolved by last-modified time; equal times yield a Conflict instead of
// a change. Metadata-only differences produce nothing.
func Classify(diffs []Difference, remote, local map[string]domain.Snapshot, folder string) *Plan {
	plan := &Plan{
		Changes:   make([]domain.Change, 0, len(diffs)),
		Conflicts: make([]domain.Conflict, 0),
	}

	for _, d := range diffs {
		switch d.Kind {
		case DiffAdded:
			l := local[d.Name]
			plan.Changes = append(plan.Changes, domain.Change{
				Name:      d.Name,
				Kind:      domain.KindUpload,
				Source:    l.Location,
				Target:    "",
				Topic:     l.Topic,
				BfsNumber: l.BfsNumber,
				LocalDate: timePtr(l.LastModified),
			})

		case DiffRemoved:
			r := remote[d.Name]
			plan.Changes = append(plan.Changes, domain.Change{
				Name:       d.Name,
				Kind:       domain.KindDownload,
				Source:     r.PK,
				Target:     LocalPath(folder, d.Name),
				Topic:      r.Topic,
				BfsNumber:  r.BfsNumber,
				RemoteDate: timePtr(r.LastModified),
			})

		case DiffChanged:
			if !d.HasField(FieldHash) {
				continue
			}
			l, r := local[d.Name], remote[d.Name]
			switch {
			case l.LastModified.After(r.LastModified):
				plan.Changes = append(plan.Changes, domain.Change{
					Name:       d.Name,
					Kind:       domain.KindUploadReplace,
					Source:     l.Location,
					Target:     r.PK,
					Topic:      l.Topic,
					BfsNumber:  l.BfsNumber,
					LocalDate:  timePtr(l.LastModified),
					RemoteDate: timePtr(r.LastModified),
				})
			case r.LastModified.After(l.LastModified):
				plan.Changes = append(plan.Changes, domain.Change{
					Name:       d.Name,
					Kind:       domain.KindDownloadReplace,
					Source:     r.PK,
					Target:     l.Location,
					Topic:      r.Topic,
					BfsNumber:  r.BfsNumber,
					LocalDate:  timePtr(l.LastModified),
					RemoteDate: timePtr(r.LastModified),
				})
			default:
				plan.Conflicts = append(plan.Conflicts, domain.Conflict{
					Name:       d.Name,
					LocalPath:  l.Location,
					RemotePK:   r.PK,
					LocalHash:  l.Hash,
					RemoteHash: r.Hash,
					Modified:   l.LastModified,
				})
			}
		}
	}

	return plan
}

// LocalPath returns the file a downloaded snapshot is written to
func LocalPath(folder, name string) string {
	return filepath.Join(folder, name+datapackage.Extension)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
