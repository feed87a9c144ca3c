package clickhouse

import (
	"context"
	"fmt"
	"strings"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/config"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// Name is the registry key for this adapter.
const Name = "clickhouse"

// Adapter targets a ClickHouse server. ClickHouse ingests natively from
// object storage via the s3() table function, so the generic data reader is
// only used for locally staged files.
type Adapter struct {
	conn   driver.Conn
	cfg    config.ClickHouseConfig
	region string
	logger *logger.Logger
}

// New connects using the client options derived from configuration.
func New(cfg *config.Configuration, log *logger.Logger) (backend.Adapter, error) {
	conn, err := clickhouse_go.Open(cfg.ClickHouse.GetClientOptions())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to init clickhouse client").
			Mark(ierr.ErrDatabase)
	}

	return &Adapter{
		conn:   conn,
		cfg:    cfg.ClickHouse,
		region: cfg.AWS.Region,
		logger: log,
	}, nil
}

// Register installs the factory in a registry.
func Register(r *backend.Registry) {
	r.Register(Name, New)
}

func (a *Adapter) Writer() backend.Writer {
	return &chWriter{conn: a.conn, logger: a.logger}
}

func (a *Adapter) StateStore(ctx context.Context) (state.Store, error) {
	s := &stateStore{conn: a.conn}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Adapter) DataReader() reader.Reader {
	// Used only for staged local files; remote objects go through s3().
	return reader.NewAutoReader()
}

func (a *Adapter) SupportsNativeObjectStore() bool {
	return true
}

func (a *Adapter) ConnectionDescriptor() string {
	return fmt.Sprintf("clickhouse://%s@%s/%s", a.cfg.Username, a.cfg.Address, a.cfg.Database)
}

func (a *Adapter) TableReference(dataset, table string) string {
	return quoteIdent(dataset) + "." + quoteIdent(table)
}

func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteIdent(name)
}

func (a *Adapter) NullColumn() string {
	return "CAST(NULL AS Nullable(String))"
}

func (a *Adapter) EnsureDataset(ctx context.Context, dataset string) error {
	query := "CREATE DATABASE IF NOT EXISTS " + quoteIdent(dataset)
	if err := a.conn.Exec(ctx, query); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create database %s", dataset).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (a *Adapter) ListTables(ctx context.Context, dataset, like string) ([]string, error) {
	query := `
		SELECT name FROM system.tables
		WHERE database = ? AND name LIKE ? AND engine != 'View'
		ORDER BY name
	`
	rows, err := a.conn.Query(ctx, query, dataset, like)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to list tables in %s", dataset).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Adapter) ColumnNames(ctx context.Context, ref backend.TableRef) ([]string, error) {
	query := `
		SELECT name FROM system.columns
		WHERE database = ? AND table = ?
		ORDER BY position
	`
	rows, err := a.conn.Query(ctx, query, ref.Dataset, ref.Table)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to describe %s.%s", ref.Dataset, ref.Table).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, ierr.WithError(err).Mark(ierr.ErrDatabase)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (a *Adapter) CreateOrReplaceView(ctx context.Context, ref backend.TableRef, selectSQL string) error {
	query := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s",
		a.TableReference(ref.Dataset, ref.Table), selectSQL)
	if err := a.conn.Exec(ctx, query); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create view %s.%s", ref.Dataset, ref.Table).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

// SupportsUnionByName is false: ClickHouse has no name-based UNION, so the
// view builder aligns columns explicitly.
func (a *Adapter) SupportsUnionByName() bool {
	return false
}

func (a *Adapter) DeleteBillingPeriod(ctx context.Context, ref backend.TableRef, period types.BillingPeriod) error {
	query := fmt.Sprintf("ALTER TABLE %s DELETE WHERE billing_period = ?",
		a.TableReference(ref.Dataset, ref.Table))
	if err := a.conn.Exec(ctx, query, period.String()); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to delete billing period %s from %s", period, ref.Table).
			Mark(ierr.ErrBackendWrite)
	}
	return nil
}

func (a *Adapter) RowCount(ctx context.Context, ref backend.TableRef) (int64, error) {
	var count uint64
	query := "SELECT count() FROM " + a.TableReference(ref.Dataset, ref.Table)
	if err := a.conn.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, ierr.WithError(err).
			WithHintf("failed to count rows in %s.%s", ref.Dataset, ref.Table).
			Mark(ierr.ErrDatabase)
	}
	return int64(count), nil
}

// NativeLoad ingests one S3 object through the s3() table function. Rows
// written are measured as the table's growth across the insert.
func (a *Adapter) NativeLoad(ctx context.Context, ref backend.TableRef, file reader.FileRef, creds objstore.Credentials) (int64, error) {
	if file.LocalPath != "" {
		return 0, ierr.NewError("native load requires an object-store file").
			Mark(ierr.ErrValidation)
	}

	before, err := a.RowCount(ctx, ref)
	if err != nil {
		return 0, err
	}

	format := "CSVWithNames"
	if file.Format == types.ExportFormatParquet {
		format = "Parquet"
	}
	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", file.Bucket, a.regionOrDefault(creds), file.Key)

	query := fmt.Sprintf("INSERT INTO %s SELECT * FROM s3(?, ?, ?, ?)",
		a.TableReference(ref.Dataset, ref.Table))
	if err := a.conn.Exec(ctx, query, url, creds.AccessKeyID, creds.SecretAccessKey, format); err != nil {
		return 0, ierr.WithError(err).
			WithHintf("native ingest of %s failed", file.Key).
			Mark(ierr.ErrBackendWrite)
	}

	after, err := a.RowCount(ctx, ref)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

func (a *Adapter) regionOrDefault(creds objstore.Credentials) string {
	if creds.Region != "" {
		return creds.Region
	}
	if a.region != "" {
		return a.region
	}
	return "us-east-1"
}

func (a *Adapter) Close() error {
	return a.conn.Close()
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
