package reader

import (
	"context"
	"strings"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/types"
)

// Record is one data row keyed by normalized column name.
type Record map[string]any

// FileRef identifies one data file of a manifest. LocalPath is set when the
// file has been staged to scratch storage (the Azure convert step); readers
// prefer it over the object-store coordinates.
type FileRef struct {
	Bucket    string
	Key       string
	Format    types.ExportFormat
	LocalPath string
}

// Reader streams records out of a data file. Implementations must not
// materialize the file in memory; fn is invoked once per row in file order
// and its error aborts the read.
type Reader interface {
	Read(ctx context.Context, ref FileRef, creds objstore.Credentials, fn func(Record) error) error
}

// AutoReader is the generic streaming reader used by every adapter's
// record path: CSV decodes straight off the byte stream, Parquet goes
// through the embedded engine, which is the only reader for that format.
type AutoReader struct {
	csv     *CSVReader
	parquet *DuckDBReader
}

func NewAutoReader() *AutoReader {
	return &AutoReader{csv: NewCSVReader(nil), parquet: NewDuckDBReader()}
}

func (r *AutoReader) Read(ctx context.Context, ref FileRef, creds objstore.Credentials, fn func(Record) error) error {
	if ref.Format == types.ExportFormatCSV {
		return r.csv.Read(ctx, ref, creds, fn)
	}
	return r.parquet.Read(ctx, ref, creds, fn)
}

// DetectFormat resolves a file's format from the explicit override or the
// key's extension.
func DetectFormat(key string, override types.ExportFormat) (types.ExportFormat, error) {
	if override != "" && override != types.ExportFormatAuto {
		return override, nil
	}
	switch {
	case strings.HasSuffix(key, ".parquet"):
		return types.ExportFormatParquet, nil
	case strings.HasSuffix(key, ".csv.gz"), strings.HasSuffix(key, ".csv"):
		return types.ExportFormatCSV, nil
	}
	return "", ierr.NewErrorf("cannot determine file format for %s", key).
		WithHint("set export_format to csv or parquet").
		Mark(ierr.ErrValidation)
}

// NormalizeColumnName rewrites vendor column separators so names are valid
// identifiers on every backend: lineItem/UnblendedCost becomes
// lineItem_UnblendedCost.
func NormalizeColumnName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}
