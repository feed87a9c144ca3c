package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

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
const Name = "postgres"

// Adapter targets PostgreSQL. Postgres cannot read object storage itself,
// so ingest goes through the generic embedded-engine reader into the batch
// writer.
type Adapter struct {
	db     *sqlx.DB
	cfg    config.PostgresConfig
	logger *logger.Logger
}

func New(cfg *config.Configuration, log *logger.Logger) (backend.Adapter, error) {
	db, err := sqlx.Open("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to open postgres connection").
			Mark(ierr.ErrDatabase)
	}

	return &Adapter{db: db, cfg: cfg.Postgres, logger: log}, nil
}

// Register installs the factory in a registry.
func Register(r *backend.Registry) {
	r.Register(Name, New)
}

func (a *Adapter) Writer() backend.Writer {
	return &pgWriter{db: a.db}
}

func (a *Adapter) StateStore(ctx context.Context) (state.Store, error) {
	s := &stateStore{db: a.db}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *Adapter) DataReader() reader.Reader {
	return reader.NewAutoReader()
}

func (a *Adapter) SupportsNativeObjectStore() bool {
	return false
}

func (a *Adapter) NativeLoad(ctx context.Context, ref backend.TableRef, file reader.FileRef, creds objstore.Credentials) (int64, error) {
	return 0, ierr.NewError("postgres has no native object-store ingest").
		Mark(ierr.ErrValidation)
}

func (a *Adapter) ConnectionDescriptor() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", a.cfg.User, a.cfg.Host, a.cfg.Port, a.cfg.DBName)
}

func (a *Adapter) TableReference(dataset, table string) string {
	return quoteIdent(dataset) + "." + quoteIdent(table)
}

func (a *Adapter) QuoteIdentifier(name string) string {
	return quoteIdent(name)
}

func (a *Adapter) NullColumn() string {
	return "NULL::text"
}

func (a *Adapter) EnsureDataset(ctx context.Context, dataset string) error {
	if _, err := a.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(dataset)); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create schema %s", dataset).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (a *Adapter) ListTables(ctx context.Context, dataset, like string) ([]string, error) {
	query := a.db.Rebind(`
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_name LIKE ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	var names []string
	if err := a.db.SelectContext(ctx, &names, query, dataset, like); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to list tables in %s", dataset).
			Mark(ierr.ErrDatabase)
	}
	return names, nil
}

func (a *Adapter) ColumnNames(ctx context.Context, ref backend.TableRef) ([]string, error) {
	query := a.db.Rebind(`
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`)
	var names []string
	if err := a.db.SelectContext(ctx, &names, query, ref.Dataset, ref.Table); err != nil {
		return nil, ierr.WithError(err).
			WithHintf("failed to describe %s.%s", ref.Dataset, ref.Table).
			Mark(ierr.ErrDatabase)
	}
	return names, nil
}

func (a *Adapter) CreateOrReplaceView(ctx context.Context, ref backend.TableRef, selectSQL string) error {
	fqn := a.TableReference(ref.Dataset, ref.Table)
	// CREATE OR REPLACE VIEW refuses column changes; drop first since month
	// tables add and remove columns across reloads.
	if _, err := a.db.ExecContext(ctx, "DROP VIEW IF EXISTS "+fqn); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to drop view %s", fqn).
			Mark(ierr.ErrDatabase)
	}
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf("CREATE VIEW %s AS %s", fqn, selectSQL)); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create view %s", fqn).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (a *Adapter) SupportsUnionByName() bool {
	return false
}

func (a *Adapter) DeleteBillingPeriod(ctx context.Context, ref backend.TableRef, period types.BillingPeriod) error {
	query := a.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE billing_period = ?",
		a.TableReference(ref.Dataset, ref.Table)))
	if _, err := a.db.ExecContext(ctx, query, period.String()); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to delete billing period %s from %s", period, ref.Table).
			Mark(ierr.ErrBackendWrite)
	}
	return nil
}

func (a *Adapter) RowCount(ctx context.Context, ref backend.TableRef) (int64, error) {
	var count int64
	query := "SELECT count(*) FROM " + a.TableReference(ref.Dataset, ref.Table)
	if err := a.db.GetContext(ctx, &count, query); err != nil {
		return 0, ierr.WithError(err).
			WithHintf("failed to count rows in %s.%s", ref.Dataset, ref.Table).
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
