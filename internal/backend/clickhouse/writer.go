package clickhouse

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/costplane/costplane/internal/backend"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/types"
)

const batchFlushSize = 10_000

type chWriter struct {
	conn   driver.Conn
	logger *logger.Logger
}

func (w *chWriter) Begin(ctx context.Context, ref backend.TableRef, columns []manifest.Column, disposition backend.WriteDisposition) (backend.Batch, error) {
	fqn := quoteIdent(ref.Dataset) + "." + quoteIdent(ref.Table)

	if disposition == backend.DispositionReplace {
		if err := w.conn.Exec(ctx, "DROP TABLE IF EXISTS "+fqn); err != nil {
			return nil, ierr.WithError(err).
				WithHintf("failed to drop %s for replace", fqn).
				Mark(ierr.ErrBackendWrite)
		}
	}

	b := &chBatch{
		ctx:     ctx,
		conn:    w.conn,
		fqn:     fqn,
		columns: columns,
	}
	if len(columns) > 0 {
		if err := b.createTable(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// chBatch buffers appended records and flushes them through the native
// protocol in bounded chunks. When the manifest carried no schema (Azure),
// the table is created from the first record's keys as nullable strings.
type chBatch struct {
	ctx     context.Context
	conn    driver.Conn
	fqn     string
	columns []manifest.Column
	names   []string
	batch   driver.Batch
	pending int
	total   int64
	aborted bool
}

func (b *chBatch) createTable(ctx context.Context) error {
	defs := make([]string, 0, len(b.columns))
	b.names = b.names[:0]
	for _, col := range b.columns {
		name := reader.NormalizeColumnName(col.Name)
		b.names = append(b.names, name)
		defs = append(defs, quoteIdent(name)+" "+columnDDL(col.Type))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()",
		b.fqn, strings.Join(defs, ", "))
	if err := b.conn.Exec(ctx, ddl); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to create table %s", b.fqn).
			Mark(ierr.ErrSchemaConflict)
	}
	return nil
}

func (b *chBatch) ensureSchema(ctx context.Context, record reader.Record) error {
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
	return b.createTable(ctx)
}

func (b *chBatch) Append(record reader.Record) error {
	ctx := b.ctx
	if err := b.ensureSchema(ctx, record); err != nil {
		return err
	}

	if b.batch == nil {
		insert := fmt.Sprintf("INSERT INTO %s (%s)", b.fqn, quotedList(b.names))
		batch, err := b.conn.PrepareBatch(ctx, insert)
		if err != nil {
			return ierr.WithError(err).
				WithHintf("failed to prepare batch for %s", b.fqn).
				Mark(ierr.ErrBackendWrite)
		}
		b.batch = batch
	}

	values := make([]any, len(b.columns))
	for i, col := range b.columns {
		v, err := convertValue(record[reader.NormalizeColumnName(col.Name)], col.Type)
		if err != nil {
			return err
		}
		values[i] = v
	}
	if err := b.batch.Append(values...); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to append row to %s", b.fqn).
			Mark(ierr.ErrBackendWrite)
	}

	b.pending++
	b.total++
	if b.pending >= batchFlushSize {
		return b.flush()
	}
	return nil
}

func (b *chBatch) flush() error {
	if b.batch == nil || b.pending == 0 {
		return nil
	}
	if err := b.batch.Send(); err != nil {
		return ierr.WithError(err).
			WithHintf("failed to send batch to %s", b.fqn).
			Mark(ierr.ErrBackendWrite)
	}
	b.batch = nil
	b.pending = 0
	return nil
}

func (b *chBatch) Commit(ctx context.Context) (int64, error) {
	if b.aborted {
		return 0, ierr.NewError("batch already aborted").Mark(ierr.ErrBackendWrite)
	}
	if err := b.flush(); err != nil {
		return 0, err
	}
	return b.total, nil
}

func (b *chBatch) Abort() error {
	b.aborted = true
	if b.batch != nil {
		err := b.batch.Abort()
		b.batch = nil
		return err
	}
	return nil
}

func columnDDL(t types.ColumnType) string {
	switch t {
	case types.ColumnMap, types.ColumnTuple:
		// Map and Tuple cannot be wrapped in Nullable.
		return t.String()
	default:
		return "Nullable(" + t.String() + ")"
	}
}

func quotedList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// convertValue coerces the reader's string-or-nil values into the Go types
// the native protocol expects per column.
func convertValue(v any, t types.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return v, nil
	}

	switch t {
	case types.ColumnDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("value %q is not a decimal", s).
				Mark(ierr.ErrBackendWrite)
		}
		return d, nil
	case types.ColumnFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("value %q is not a float", s).
				Mark(ierr.ErrBackendWrite)
		}
		return f, nil
	case types.ColumnDateTime, types.ColumnDateTime64:
		ts, err := parseTimestamp(s)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("value %q is not a timestamp", s).
				Mark(ierr.ErrBackendWrite)
		}
		return ts, nil
	default:
		return s, nil
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
