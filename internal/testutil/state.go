package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// InMemoryStateStore implements state.Store with the same invariants the
// database-backed stores enforce: at most one current record per (vendor,
// export, billing period), and a current record is always completed.
type InMemoryStateStore struct {
	mu      sync.Mutex
	records map[state.Key]*state.LoadRecord
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{records: make(map[state.Key]*state.LoadRecord)}
}

// Record returns a copy of the stored record, for assertions.
func (s *InMemoryStateStore) Record(key state.Key) (state.LoadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return state.LoadRecord{}, false
	}
	return *rec, true
}

func (s *InMemoryStateStore) IsVersionLoaded(ctx context.Context, key state.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return ok && rec.Status == types.LoadStatusCompleted, nil
}

func (s *InMemoryStateStore) StartLoad(ctx context.Context, key state.Key, dataFormatVersion string, fileCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		rec.Status = types.LoadStatusStarted
		rec.ErrorMessage = ""
		rec.StartedAt = time.Now().UTC()
		rec.FileCount = fileCount
		return nil
	}

	s.records[key] = &state.LoadRecord{
		Key:               key,
		DataFormatVersion: dataFormatVersion,
		Status:            types.LoadStatusStarted,
		StartedAt:         time.Now().UTC(),
		FileCount:         fileCount,
	}
	return nil
}

func (s *InMemoryStateStore) CompleteLoad(ctx context.Context, key state.Key, rowCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return ierr.NewErrorf("no load record for %s/%s %s %s",
			key.Vendor, key.ExportName, key.BillingPeriod, key.VersionID).
			Mark(ierr.ErrStateInconsistent)
	}

	for other, orec := range s.records {
		if other.Vendor == key.Vendor && other.ExportName == key.ExportName &&
			other.BillingPeriod.Equal(key.BillingPeriod) && other.VersionID != key.VersionID {
			orec.IsCurrent = false
		}
	}

	rec.Status = types.LoadStatusCompleted
	rec.CompletedAt = time.Now().UTC()
	rec.RowCount = rowCount
	rec.IsCurrent = true
	return nil
}

func (s *InMemoryStateStore) FailLoad(ctx context.Context, key state.Key, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		rec.Status = types.LoadStatusFailed
		rec.ErrorMessage = message
	}
	return nil
}

func (s *InMemoryStateStore) CurrentVersions(ctx context.Context, vendor types.Vendor, exportName string) ([]state.CurrentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []state.CurrentVersion
	for _, rec := range s.records {
		if rec.Vendor != vendor || rec.ExportName != exportName || !rec.IsCurrent {
			continue
		}
		out = append(out, state.CurrentVersion{
			BillingPeriod:     rec.BillingPeriod,
			VersionID:         rec.VersionID,
			DataFormatVersion: rec.DataFormatVersion,
			LoadedAt:          rec.CompletedAt,
			RowCount:          rec.RowCount,
			FileCount:         rec.FileCount,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].BillingPeriod.Before(out[i].BillingPeriod)
	})
	return out, nil
}

func (s *InMemoryStateStore) VersionHistory(ctx context.Context, vendor types.Vendor, exportName string, period types.BillingPeriod) ([]state.LoadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []state.LoadRecord
	for _, rec := range s.records {
		if rec.Vendor != vendor || rec.ExportName != exportName || !rec.BillingPeriod.Equal(period) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (s *InMemoryStateStore) ListExports(ctx context.Context) ([]state.ExportRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[state.ExportRef]bool{}
	var out []state.ExportRef
	for _, rec := range s.records {
		ref := state.ExportRef{Vendor: rec.Vendor, ExportName: rec.ExportName}
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vendor != out[j].Vendor {
			return out[i].Vendor < out[j].Vendor
		}
		return out[i].ExportName < out[j].ExportName
	})
	return out, nil
}
