package state

import (
	"context"
	"time"

	"github.com/costplane/costplane/internal/types"
)

// Key identifies one load record: the four-tuple that is unique per manifest
// publication.
type Key struct {
	Vendor        types.Vendor
	ExportName    string
	BillingPeriod types.BillingPeriod
	VersionID     string
}

// LoadRecord is the persisted state of one load attempt.
type LoadRecord struct {
	Key
	DataFormatVersion string
	IsCurrent         bool
	Status            types.LoadStatus
	StartedAt         time.Time
	CompletedAt       time.Time
	RowCount          int64
	FileCount         int
	ErrorMessage      string
}

// CurrentVersion is one row of the per-export current-versions listing.
type CurrentVersion struct {
	BillingPeriod     types.BillingPeriod
	VersionID         string
	DataFormatVersion string
	LoadedAt          time.Time
	RowCount          int64
	FileCount         int
}

// Store tracks load state across runs. It is the pipeline's only shared
// mutable state and the synchronization point for the version-swap protocol:
// at most one record per (vendor, export, billing period) is current, and a
// current record is always completed.
type Store interface {
	// IsVersionLoaded reports whether a completed record exists for the key.
	IsVersionLoaded(ctx context.Context, key Key) (bool, error)

	// StartLoad upserts the record into the started state. An existing
	// record is reset: status back to started, error cleared, started_at
	// refreshed. A new record is inserted with is_current=false.
	StartLoad(ctx context.Context, key Key, dataFormatVersion string, fileCount int) error

	// CompleteLoad marks the record completed and flips the current pointer
	// to it, demoting every other record of the same (vendor, export,
	// billing period). The two steps commit together where the backend
	// supports transactions.
	CompleteLoad(ctx context.Context, key Key, rowCount int64) error

	// FailLoad marks the record failed with the message captured verbatim.
	FailLoad(ctx context.Context, key Key, message string) error

	// CurrentVersions lists the current record per billing period for an
	// export, newest period first.
	CurrentVersions(ctx context.Context, vendor types.Vendor, exportName string) ([]CurrentVersion, error)

	// VersionHistory lists every record for a billing period, newest
	// started_at first.
	VersionHistory(ctx context.Context, vendor types.Vendor, exportName string, period types.BillingPeriod) ([]LoadRecord, error)

	// ListExports enumerates the distinct (vendor, export) pairs present.
	ListExports(ctx context.Context) ([]ExportRef, error)
}

// ExportRef is one (vendor, export) pair known to the state store.
type ExportRef struct {
	Vendor     types.Vendor
	ExportName string
}

// StateDataset is the namespace that holds the load_state table on every
// backend.
const StateDataset = "billing_state"

// StateTable is the load-state table name.
const StateTable = "load_state"
