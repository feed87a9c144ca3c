package backend

import (
	"context"

	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// WriteDisposition controls what happens to a destination table before
// writing.
type WriteDisposition string

const (
	// DispositionReplace drops and recreates the table.
	DispositionReplace WriteDisposition = "replace"
	// DispositionAppend leaves existing rows in place.
	DispositionAppend WriteDisposition = "append"
)

// TableRef names a table within a dataset.
type TableRef struct {
	Dataset string
	Table   string
}

// Batch accepts streamed records for one table. Commit reports the number of
// rows written; Abort discards the batch where the backend can.
type Batch interface {
	Append(record reader.Record) error
	Commit(ctx context.Context) (int64, error)
	Abort() error
}

// Writer is the adapter's ingestion endpoint.
type Writer interface {
	// Begin prepares the destination table per the disposition and returns a
	// batch bound to it. Columns may be empty when the schema is discovered
	// from the first record.
	Begin(ctx context.Context, ref TableRef, columns []manifest.Column, disposition WriteDisposition) (Batch, error)
}

// Adapter is one analytical database. Each adapter provides a writer, a
// state store, and either a data reader or native object-store ingest.
type Adapter interface {
	// Writer returns the ingestion endpoint.
	Writer() Writer

	// StateStore creates (bootstrapping schema if needed) the state store.
	StateStore(ctx context.Context) (state.Store, error)

	// DataReader returns the reader used to stream records to the writer,
	// or nil when the backend prefers native ingest.
	DataReader() reader.Reader

	// SupportsNativeObjectStore reports whether NativeLoad should be used
	// instead of the reader/writer pair.
	SupportsNativeObjectStore() bool

	// NativeLoad bulk-ingests one object-store file straight into the table
	// and returns the rows written. Only valid when
	// SupportsNativeObjectStore is true.
	NativeLoad(ctx context.Context, ref TableRef, file reader.FileRef, creds objstore.Credentials) (int64, error)

	// ConnectionDescriptor describes the connection for logging; it must not
	// leak credentials.
	ConnectionDescriptor() string

	// TableReference renders the dialect-correct fully-qualified name.
	TableReference(dataset, table string) string

	// QuoteIdentifier renders one identifier in the dialect's quoting.
	QuoteIdentifier(name string) string

	// NullColumn renders a typed NULL standing in for a column a table does
	// not have, used by the aligned-union view builder.
	NullColumn() string

	// EnsureDataset creates the dataset (schema/database) if absent.
	EnsureDataset(ctx context.Context, dataset string) error

	// ListTables enumerates table names in the dataset matching the LIKE
	// pattern, views excluded.
	ListTables(ctx context.Context, dataset, like string) ([]string, error)

	// ColumnNames lists a table's column names in order.
	ColumnNames(ctx context.Context, ref TableRef) ([]string, error)

	// CreateOrReplaceView installs a view over the given SELECT body.
	CreateOrReplaceView(ctx context.Context, ref TableRef, selectSQL string) error

	// SupportsUnionByName reports whether the dialect has name-based UNION;
	// otherwise the view builder aligns columns explicitly.
	SupportsUnionByName() bool

	// DeleteBillingPeriod removes one month's rows from the single-table
	// strategy's shared table.
	DeleteBillingPeriod(ctx context.Context, ref TableRef, period types.BillingPeriod) error

	// RowCount counts rows in a table.
	RowCount(ctx context.Context, ref TableRef) (int64, error)

	Close() error
}
