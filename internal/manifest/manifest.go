package manifest

import (
	"time"

	"github.com/costplane/costplane/internal/types"
)

// Column is one (name, type) pair of a normalized manifest schema.
type Column struct {
	Name string
	Type types.ColumnType
}

// Manifest is the vendor-neutral view of one manifest publication. A given
// (vendor, export, billing period) sees many manifests over time; later
// publications supersede earlier ones via VersionID.
type Manifest struct {
	Vendor        types.Vendor
	FormatVersion types.FormatVersion
	ExportName    string
	BillingPeriod types.BillingPeriod
	// VersionID is the vendor's immutable identifier for this publication:
	// assemblyId (CUR v1), executionId (CUR v2), or the execution folder /
	// filename timestamp (Azure).
	VersionID string
	// DataFiles are object-store keys relative to the manifest's bucket.
	DataFiles []string
	Columns   []Column
}

// Ref points at a discovered manifest blob before it has been fetched.
type Ref struct {
	Bucket        string
	Key           string
	BillingPeriod types.BillingPeriod
	FormatVersion types.FormatVersion
	LastModified  time.Time
}
