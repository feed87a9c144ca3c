package types

import (
	ierr "github.com/costplane/costplane/internal/errors"
)

// Vendor identifies the cloud provider that published a billing export.
type Vendor string

const (
	VendorAWS   Vendor = "aws"
	VendorAzure Vendor = "azure"
)

func (v Vendor) String() string {
	return string(v)
}

func (v Vendor) Validate() error {
	switch v {
	case VendorAWS, VendorAzure:
		return nil
	default:
		return ierr.NewErrorf("invalid vendor: %s", v).
			WithHint("valid vendors are: aws, azure").
			Mark(ierr.ErrValidation)
	}
}

// Dataset returns the dataset (schema/database) that holds this vendor's
// billing data tables, e.g. "aws_billing".
func (v Vendor) Dataset() string {
	return string(v) + "_billing"
}

// FormatVersion is the vendor's manifest schema version.
type FormatVersion string

const (
	FormatV1 FormatVersion = "v1"
	FormatV2 FormatVersion = "v2"
)

func (f FormatVersion) String() string {
	return string(f)
}

func (f FormatVersion) Validate() error {
	switch f {
	case FormatV1, FormatV2:
		return nil
	default:
		return ierr.NewErrorf("invalid format version: %s", f).
			WithHint("valid format versions are: v1, v2").
			Mark(ierr.ErrValidation)
	}
}

// ExportFormat is the data file format of the export.
type ExportFormat string

const (
	ExportFormatCSV     ExportFormat = "csv"
	ExportFormatParquet ExportFormat = "parquet"
	ExportFormatAuto    ExportFormat = "auto"
)

func (f ExportFormat) Validate() error {
	switch f {
	case ExportFormatCSV, ExportFormatParquet, ExportFormatAuto, "":
		return nil
	default:
		return ierr.NewErrorf("invalid export format: %s", f).
			WithHint("valid export formats are: csv, parquet, auto").
			Mark(ierr.ErrValidation)
	}
}

// TableStrategy selects how billing periods map onto data tables.
type TableStrategy string

const (
	// StrategySeparate gives every billing period its own table which is
	// fully replaced on reload. This is the default.
	StrategySeparate TableStrategy = "separate"
	// StrategySingle keeps one billing_data table with a billing_period
	// column; reloads delete the month's rows before appending.
	StrategySingle TableStrategy = "single"
)

func (s TableStrategy) Validate() error {
	switch s {
	case StrategySeparate, StrategySingle, "":
		return nil
	default:
		return ierr.NewErrorf("invalid table strategy: %s", s).
			WithHint("valid strategies are: separate, single").
			Mark(ierr.ErrValidation)
	}
}
