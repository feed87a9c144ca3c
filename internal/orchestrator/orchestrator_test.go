package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/state"
	"github.com/costplane/costplane/internal/testutil"
	"github.com/costplane/costplane/internal/types"
)

// stubSource feeds canned manifests into the orchestrator.
type stubSource struct {
	export    string
	refs      []manifest.Ref
	manifests map[string]*manifest.Manifest
	files     map[string][]reader.FileRef
	cleanups  int
}

func (s *stubSource) ExportName() string { return s.export }

func (s *stubSource) List(ctx context.Context, start, end types.BillingPeriod) ([]manifest.Ref, error) {
	var out []manifest.Ref
	for _, ref := range s.refs {
		if ref.BillingPeriod.InRange(start, end) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *stubSource) Resolve(ctx context.Context, ref manifest.Ref) (*manifest.Manifest, error) {
	return s.manifests[ref.Key], nil
}

func (s *stubSource) Stage(ctx context.Context, m *manifest.Manifest) ([]reader.FileRef, func(), error) {
	var files []reader.FileRef
	for _, key := range m.DataFiles {
		files = append(files, s.files[key]...)
	}
	return files, func() { s.cleanups++ }, nil
}

func newTestOrchestrator(adapter backend.Adapter, strategy types.TableStrategy, src source) *Orchestrator {
	cfg := &config.Configuration{Backend: "fake", Strategy: strategy}
	o := New(cfg, adapter, logger.NewNop())
	o.sources = func(ctx context.Context, vendor types.Vendor) (source, objstore.Credentials, error) {
		return src, objstore.Credentials{}, nil
	}
	return o
}

var testColumns = []manifest.Column{
	{Name: "identity_LineItemId", Type: types.ColumnString},
	{Name: "lineItem_UnblendedCost", Type: types.ColumnDecimal},
}

func curManifest(period types.BillingPeriod, versionID string, dataFiles ...string) *manifest.Manifest {
	return &manifest.Manifest{
		Vendor:        types.VendorAWS,
		FormatVersion: types.FormatV1,
		ExportName:    "my-report",
		BillingPeriod: period,
		VersionID:     versionID,
		DataFiles:     dataFiles,
		Columns:       testColumns,
	}
}

func testRecords(n int, id string) []reader.Record {
	out := make([]reader.Record, n)
	for i := range out {
		out[i] = reader.Record{
			"identity_LineItemId":    id,
			"lineItem_UnblendedCost": "1.50",
		}
	}
	return out
}

func manifestRef(period types.BillingPeriod, key string) manifest.Ref {
	return manifest.Ref{
		Bucket:        "bucket",
		Key:           key,
		BillingPeriod: period,
		FormatVersion: types.FormatV1,
		LastModified:  time.Now().UTC(),
	}
}

func TestRunFreshLoad(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(3, "v1")

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
		},
	}

	summary, err := newTestOrchestrator(adapter, types.StrategySeparate, src).
		Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Loaded())
	require.Len(t, summary.Results, 1)
	assert.Equal(t, "my_report_2024_01", summary.Results[0].Table)
	assert.Equal(t, int64(3), summary.Results[0].RowCount)

	rows := adapter.Rows(backend.TableRef{Dataset: "aws_billing", Table: "my_report_2024_01"})
	assert.Len(t, rows, 3)

	rec, ok := adapter.State.Record(state.Key{
		Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan, VersionID: "asm-1",
	})
	require.True(t, ok)
	assert.Equal(t, types.LoadStatusCompleted, rec.Status)
	assert.True(t, rec.IsCurrent)
	assert.Equal(t, int64(3), rec.RowCount)

	assert.Contains(t, adapter.Views, "aws_billing.my_report_unified")
	assert.Equal(t, 1, src.cleanups)
}

func TestRunSecondRunIsIdempotent(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(2, "v1")

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
		},
	}
	o := newTestOrchestrator(adapter, types.StrategySeparate, src)

	_, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Loaded())
	assert.Equal(t, 1, summary.Skipped())
	rows := adapter.Rows(backend.TableRef{Dataset: "aws_billing", Table: "my_report_2024_01"})
	assert.Len(t, rows, 2, "a skipped version must write nothing")
}

func TestRunReplacesSupersededVersion(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(2, "v1")
	adapter.Reader.Files["f2.csv"] = testRecords(5, "v2")

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
			"f2.csv": {{Bucket: "bucket", Key: "f2.csv", Format: types.ExportFormatCSV}},
		},
	}
	o := newTestOrchestrator(adapter, types.StrategySeparate, src)

	_, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	// A fresh publication for the same month supersedes the loaded one.
	src.manifests["m-jan"] = curManifest(jan, "asm-2", "f2.csv")
	summary, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded())

	rows := adapter.Rows(backend.TableRef{Dataset: "aws_billing", Table: "my_report_2024_01"})
	require.Len(t, rows, 5)
	assert.Equal(t, "v2", rows[0]["identity_LineItemId"])

	key := state.Key{Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan}
	old, ok := adapter.State.Record(state.Key{Vendor: key.Vendor, ExportName: key.ExportName, BillingPeriod: jan, VersionID: "asm-1"})
	require.True(t, ok)
	assert.False(t, old.IsCurrent)

	cur, ok := adapter.State.Record(state.Key{Vendor: key.Vendor, ExportName: key.ExportName, BillingPeriod: jan, VersionID: "asm-2"})
	require.True(t, ok)
	assert.True(t, cur.IsCurrent)
}

func TestRunMidLoadFailure(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	feb := types.NewBillingPeriod(2024, time.February)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(2, "v1")
	adapter.Reader.Err["f1.csv"] = errors.New("connection reset")
	adapter.Reader.Files["f2.csv"] = testRecords(3, "v1")

	src := &stubSource{
		export: "my-report",
		refs:   []manifest.Ref{manifestRef(jan, "m-jan"), manifestRef(feb, "m-feb")},
		manifests: map[string]*manifest.Manifest{
			"m-jan": curManifest(jan, "asm-1", "f1.csv"),
			"m-feb": curManifest(feb, "asm-2", "f2.csv"),
		},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
			"f2.csv": {{Bucket: "bucket", Key: "f2.csv", Format: types.ExportFormatCSV}},
		},
	}

	// Fail fast: the february month is never attempted.
	o := newTestOrchestrator(adapter, types.StrategySeparate, src)
	summary, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.Error(t, err)
	assert.Equal(t, 1, summary.Failed())
	assert.Len(t, summary.Results, 1)

	rec, ok := adapter.State.Record(state.Key{
		Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan, VersionID: "asm-1",
	})
	require.True(t, ok)
	assert.Equal(t, types.LoadStatusFailed, rec.Status)
	assert.Equal(t, "connection reset", rec.ErrorMessage)
	assert.False(t, rec.IsCurrent)

	// Continue on error: the february month still loads.
	adapter2 := testutil.NewFakeAdapter()
	adapter2.Reader.Files = adapter.Reader.Files
	adapter2.Reader.Err = adapter.Reader.Err
	summary, err = newTestOrchestrator(adapter2, types.StrategySeparate, src).
		Run(context.Background(), Params{Vendor: types.VendorAWS, ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, 1, summary.Loaded())
}

func TestRunFailedLoadRetriesNextRun(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(2, "v1")
	adapter.Reader.Err["f1.csv"] = errors.New("boom")

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
		},
	}
	o := newTestOrchestrator(adapter, types.StrategySeparate, src)

	_, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.Error(t, err)

	// The failed version is redone from scratch on the next run.
	delete(adapter.Reader.Err, "f1.csv")
	summary, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Loaded())

	rec, _ := adapter.State.Record(state.Key{
		Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan, VersionID: "asm-1",
	})
	assert.Equal(t, types.LoadStatusCompleted, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
	assert.True(t, rec.IsCurrent)
}

func TestRunCancellation(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(2, "v1")

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(adapter, types.StrategySeparate, src).
		Run(ctx, Params{Vendor: types.VendorAWS, ContinueOnError: true})
	require.Error(t, err)

	rec, ok := adapter.State.Record(state.Key{
		Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan, VersionID: "asm-1",
	})
	require.True(t, ok)
	assert.Equal(t, types.LoadStatusFailed, rec.Status)
	assert.Equal(t, "cancelled", rec.ErrorMessage)
}

func TestRunNativeIngest(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Native = true
	adapter.NativeRows = 5

	src := &stubSource{
		export:    "my-report",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "asm-1", "f1.csv", "f2.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
			"f2.csv": {{Bucket: "bucket", Key: "f2.csv", Format: types.ExportFormatCSV}},
		},
	}

	summary, err := newTestOrchestrator(adapter, types.StrategySeparate, src).
		Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Loaded())
	require.Len(t, adapter.NativeLoads, 2)
	assert.Equal(t, "my_report_2024_01", adapter.NativeLoads[0].Ref.Table)

	rec, _ := adapter.State.Record(state.Key{
		Vendor: types.VendorAWS, ExportName: "my-report", BillingPeriod: jan, VersionID: "asm-1",
	})
	assert.Equal(t, int64(10), rec.RowCount)
}

func TestRunStagedFilesBypassNativeIngest(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	adapter := testutil.NewFakeAdapter()
	adapter.Native = true
	adapter.Reader.Files["f1.csv"] = testRecords(4, "v1")

	src := &stubSource{
		export:    "exp",
		refs:      []manifest.Ref{manifestRef(jan, "m-jan")},
		manifests: map[string]*manifest.Manifest{"m-jan": curManifest(jan, "run-1", "f1.csv")},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatParquet, LocalPath: "/tmp/f1.parquet"}},
		},
	}

	summary, err := newTestOrchestrator(adapter, types.StrategySeparate, src).
		Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Loaded())
	assert.Empty(t, adapter.NativeLoads)
	assert.Equal(t, int64(4), summary.Results[0].RowCount)
}

func TestRunSingleTableStrategy(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	feb := types.NewBillingPeriod(2024, time.February)
	adapter := testutil.NewFakeAdapter()
	adapter.Native = true // single strategy must stream regardless
	adapter.Reader.Files["f1.csv"] = testRecords(2, "jan")
	adapter.Reader.Files["f2.csv"] = testRecords(3, "feb")

	src := &stubSource{
		export: "my-report",
		refs:   []manifest.Ref{manifestRef(jan, "m-jan"), manifestRef(feb, "m-feb")},
		manifests: map[string]*manifest.Manifest{
			"m-jan": curManifest(jan, "asm-1", "f1.csv"),
			"m-feb": curManifest(feb, "asm-2", "f2.csv"),
		},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
			"f2.csv": {{Bucket: "bucket", Key: "f2.csv", Format: types.ExportFormatCSV}},
		},
	}
	o := newTestOrchestrator(adapter, types.StrategySingle, src)

	_, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS})
	require.NoError(t, err)

	ref := backend.TableRef{Dataset: "aws_billing", Table: "billing_data"}
	rows := adapter.Rows(ref)
	require.Len(t, rows, 5)
	assert.Equal(t, "2024-01", rows[0]["billing_period"])
	assert.Empty(t, adapter.NativeLoads)

	// Reloading a month replaces only that month's rows.
	adapter.Reader.Files["f1.csv"] = testRecords(4, "jan-redo")
	summary, err := o.Run(context.Background(), Params{Vendor: types.VendorAWS, Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Loaded())

	rows = adapter.Rows(ref)
	byPeriod := map[any]int{}
	for _, row := range rows {
		byPeriod[row["billing_period"]]++
	}
	assert.Equal(t, 4, byPeriod["2024-01"])
	assert.Equal(t, 3, byPeriod["2024-02"])
}

func TestRunDateRangeFilter(t *testing.T) {
	jan := types.NewBillingPeriod(2024, time.January)
	feb := types.NewBillingPeriod(2024, time.February)
	adapter := testutil.NewFakeAdapter()
	adapter.Reader.Files["f1.csv"] = testRecords(1, "jan")
	adapter.Reader.Files["f2.csv"] = testRecords(1, "feb")

	src := &stubSource{
		export: "my-report",
		refs:   []manifest.Ref{manifestRef(jan, "m-jan"), manifestRef(feb, "m-feb")},
		manifests: map[string]*manifest.Manifest{
			"m-jan": curManifest(jan, "asm-1", "f1.csv"),
			"m-feb": curManifest(feb, "asm-2", "f2.csv"),
		},
		files: map[string][]reader.FileRef{
			"f1.csv": {{Bucket: "bucket", Key: "f1.csv", Format: types.ExportFormatCSV}},
			"f2.csv": {{Bucket: "bucket", Key: "f2.csv", Format: types.ExportFormatCSV}},
		},
	}

	summary, err := newTestOrchestrator(adapter, types.StrategySeparate, src).
		Run(context.Background(), Params{Vendor: types.VendorAWS, Start: feb, End: feb})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Loaded())
	assert.Equal(t, "my_report_2024_02", summary.Results[0].Table)
}
