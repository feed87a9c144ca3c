package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/costplane/costplane/internal/backend"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/types"
)

const insertChunkSize = 500

type ddbWriter struct {
	db *sql.DB
}

func (w *ddbWriter) Begin(ctx context.Context, ref backend.TableRef, columns []manifest.Column, disposition backend.WriteDisposition) (backend.Batch, error) {
	fqn := quoteIdent(ref.Dataset) + "." + quoteIdent(ref.Table)

	if disposition == backend.DispositionReplace {
		if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+fqn); err != nil {
			return nil, ierr.WithError(err).
				WithHintf("failed to drop %s for replace", fqn).
				Mark(ierr.ErrBackendWrite)
		}
	}

	b := &ddbBatch{ctx: ctx, db: w.db, fqn: fqn, columns: columns}
	if len(columns) > 0 {
		if err := b.createTable(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ddbBatch buffers rows and flushes multi-row inserts in bounded chunks.
type ddbBatch struct {
	ctx     context.Context
	db      *sql.DB
	fqn     string
	columns []manifest.Column
	names   []string
	rows    [][]any
	total   int64
	aborted bool
}

func (b *ddbBatch) createTable() error {
	defs := make([]string, 0, len(b.columns))
	b.names = b.names[:0]
	for _, col := range b.columns {
		name := reader.NormalizeColumnName(col.Name)
		b.names = append(b.names, name)
		defs = append(defs, quoteIdent(name)+" "+duckdbType(col.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", b.fqn, strings.Join(defs, ", "))
	if _, err := b.db.ExecContext(b.ctx, ddl); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create table %s", b.fqn).
			Mark(ierr.ErrSchemaConflict)
	}
	return nil
}

func (b *ddbBatch) ensureSchema(record reader.Record) error {
	if len(b.columns) > 0 {
		return nil
	}
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.columns = append(b.columns, manifest.Column{Name: k, Type: types.ColumnString})
	}
	return b.createTable()
}

func (b *ddbBatch) Append(record reader.Record) error {
	if err := b.ensureSchema(record); err != nil {
		return err
	}

	row := make([]any, len(b.names))
	for i, name := range b.names {
		row[i] = record[name]
	}
	b.rows = append(b.rows, row)
	b.total++

	if len(b.rows) >= insertChunkSize {
		return b.flush()
	}
	return nil
}

func (b *ddbBatch) flush() error {
	if len(b.rows) == 0 {
		return nil
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.names)), ", ") + ")"
	tuples := make([]string, len(b.rows))
	args := make([]any, 0, len(b.rows)*len(b.names))
	for i, row := range b.rows {
		tuples[i] = placeholders
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		b.fqn, quotedList(b.names), strings.Join(tuples, ", "))
	if _, err := b.db.ExecContext(b.ctx, query, args...); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to insert batch into %s", b.fqn).
			Mark(ierr.ErrBackendWrite)
	}

	b.rows = b.rows[:0]
	return nil
}

func (b *ddbBatch) Commit(ctx context.Context) (int64, error) {
	if b.aborted {
		return 0, ierr.NewError("batch already aborted").Mark(ierr.ErrBackendWrite)
	}
	if err := b.flush(); err != nil {
		return 0, err
	}
	return b.total, nil
}

func (b *ddbBatch) Abort() error {
	b.aborted = true
	b.rows = nil
	return nil
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func duckdbType(t types.ColumnType) string {
	switch t {
	case types.ColumnDateTime, types.ColumnDateTime64:
		return "TIMESTAMP"
	case types.ColumnDecimal:
		return "DECIMAL(20, 8)"
	case types.ColumnFloat64:
		return "DOUBLE"
	default:
		// Map and Tuple payloads are kept as raw text on this backend.
		return "VARCHAR"
	}
}
