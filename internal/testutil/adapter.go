package testutil

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/costplane/costplane/internal/backend"
	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/types"
)

// NativeLoadCall records one NativeLoad invocation.
type NativeLoadCall struct {
	Ref  backend.TableRef
	File reader.FileRef
}

// FakeAdapter implements backend.Adapter in memory, recording every write so
// tests can assert on what the pipeline did. Zero value toggles: Native and
// UnionByName select the capability answers, NativeRows is the row count each
// NativeLoad reports, NativeErr and BeginErr inject failures.
type FakeAdapter struct {
	mu sync.Mutex

	Native      bool
	UnionByName bool
	NativeRows  int64
	NativeErr   error
	BeginErr    error

	State  *InMemoryStateStore
	Reader *FakeReader

	Tables      map[string][]reader.Record
	Columns     map[string][]string
	Views       map[string]string
	Datasets    map[string]bool
	NativeLoads []NativeLoadCall
}

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		State:    NewInMemoryStateStore(),
		Reader:   NewFakeReader(),
		Tables:   make(map[string][]reader.Record),
		Columns:  make(map[string][]string),
		Views:    make(map[string]string),
		Datasets: make(map[string]bool),
	}
}

func fqn(ref backend.TableRef) string {
	return ref.Dataset + "." + ref.Table
}

// Rows returns the table's rows, for assertions.
func (a *FakeAdapter) Rows(ref backend.TableRef) []reader.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]reader.Record{}, a.Tables[fqn(ref)]...)
}

func (a *FakeAdapter) Writer() backend.Writer {
	return &fakeWriter{adapter: a}
}

func (a *FakeAdapter) StateStore(ctx context.Context) (state.Store, error) {
	return a.State, nil
}

func (a *FakeAdapter) DataReader() reader.Reader {
	return a.Reader
}

func (a *FakeAdapter) SupportsNativeObjectStore() bool {
	return a.Native
}

func (a *FakeAdapter) NativeLoad(ctx context.Context, ref backend.TableRef, file reader.FileRef, creds objstore.Credentials) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.NativeErr != nil {
		return 0, a.NativeErr
	}
	a.NativeLoads = append(a.NativeLoads, NativeLoadCall{Ref: ref, File: file})
	if _, ok := a.Tables[fqn(ref)]; !ok {
		a.Tables[fqn(ref)] = nil
	}
	return a.NativeRows, nil
}

func (a *FakeAdapter) ConnectionDescriptor() string {
	return "fake://"
}

func (a *FakeAdapter) TableReference(dataset, table string) string {
	return dataset + "." + table
}

func (a *FakeAdapter) QuoteIdentifier(name string) string {
	return name
}

func (a *FakeAdapter) NullColumn() string {
	return "NULL"
}

func (a *FakeAdapter) EnsureDataset(ctx context.Context, dataset string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Datasets[dataset] = true
	return nil
}

func (a *FakeAdapter) ListTables(ctx context.Context, dataset, like string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pattern := regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(like), "%", ".*") + "$")
	var names []string
	for name := range a.Tables {
		prefix := dataset + "."
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		table := strings.TrimPrefix(name, prefix)
		if pattern.MatchString(table) {
			names = append(names, table)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (a *FakeAdapter) ColumnNames(ctx context.Context, ref backend.TableRef) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cols, ok := a.Columns[fqn(ref)]
	if !ok {
		return nil, ierr.NewErrorf("no table %s", fqn(ref)).Mark(ierr.ErrNotFound)
	}
	return append([]string{}, cols...), nil
}

func (a *FakeAdapter) CreateOrReplaceView(ctx context.Context, ref backend.TableRef, selectSQL string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Views[fqn(ref)] = selectSQL
	return nil
}

func (a *FakeAdapter) SupportsUnionByName() bool {
	return a.UnionByName
}

func (a *FakeAdapter) DeleteBillingPeriod(ctx context.Context, ref backend.TableRef, period types.BillingPeriod) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows := a.Tables[fqn(ref)]
	kept := rows[:0]
	for _, row := range rows {
		if row["billing_period"] != period.String() {
			kept = append(kept, row)
		}
	}
	a.Tables[fqn(ref)] = kept
	return nil
}

func (a *FakeAdapter) RowCount(ctx context.Context, ref backend.TableRef) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.Tables[fqn(ref)])), nil
}

func (a *FakeAdapter) Close() error {
	return nil
}

type fakeWriter struct {
	adapter *FakeAdapter
}

func (w *fakeWriter) Begin(ctx context.Context, ref backend.TableRef, columns []manifest.Column, disposition backend.WriteDisposition) (backend.Batch, error) {
	a := w.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.BeginErr != nil {
		return nil, a.BeginErr
	}

	name := fqn(ref)
	if disposition == backend.DispositionReplace {
		delete(a.Tables, name)
		delete(a.Columns, name)
	}
	if _, ok := a.Tables[name]; !ok {
		a.Tables[name] = nil
	}
	if len(columns) > 0 {
		names := make([]string, len(columns))
		for i, col := range columns {
			names[i] = reader.NormalizeColumnName(col.Name)
		}
		a.Columns[name] = names
	}

	return &fakeBatch{adapter: a, name: name}, nil
}

type fakeBatch struct {
	adapter *FakeAdapter
	name    string
	pending []reader.Record
	aborted bool
}

func (b *fakeBatch) Append(record reader.Record) error {
	clone := make(reader.Record, len(record))
	for k, v := range record {
		clone[k] = v
	}
	b.pending = append(b.pending, clone)
	return nil
}

func (b *fakeBatch) Commit(ctx context.Context) (int64, error) {
	if b.aborted {
		return 0, ierr.NewError("batch already aborted").Mark(ierr.ErrBackendWrite)
	}
	a := b.adapter
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(b.pending) > 0 && len(a.Columns[b.name]) == 0 {
		keys := make([]string, 0, len(b.pending[0]))
		for k := range b.pending[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		a.Columns[b.name] = keys
	}
	a.Tables[b.name] = append(a.Tables[b.name], b.pending...)
	n := int64(len(b.pending))
	b.pending = nil
	return n, nil
}

func (b *fakeBatch) Abort() error {
	b.aborted = true
	b.pending = nil
	return nil
}

// FakeReader streams canned records keyed by object key. Err, when set for a
// key, is returned after the key's records have been delivered, so tests can
// fail a load partway through a file.
type FakeReader struct {
	Files map[string][]reader.Record
	Err   map[string]error
}

func NewFakeReader() *FakeReader {
	return &FakeReader{
		Files: make(map[string][]reader.Record),
		Err:   make(map[string]error),
	}
}

func (r *FakeReader) Read(ctx context.Context, ref reader.FileRef, creds objstore.Credentials, fn func(reader.Record) error) error {
	for _, record := range r.Files[ref.Key] {
		clone := make(reader.Record, len(record))
		for k, v := range record {
			clone[k] = v
		}
		if err := fn(clone); err != nil {
			return err
		}
	}
	if err := r.Err[ref.Key]; err != nil {
		return err
	}
	return ctx.Err()
}
