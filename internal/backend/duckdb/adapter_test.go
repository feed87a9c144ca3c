package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/backend"
	"github.com/costplane/costplane/internal/config"
	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/types"
)

func newTestAdapter(t *testing.T) backend.Adapter {
	t.Helper()

	log, err := logger.NewLogger("error")
	require.NoError(t, err)

	cfg := &config.Configuration{
		DuckDB: config.DuckDBConfig{
			DatabasePath: filepath.Join(t.TempDir(), "test.db"),
		},
	}
	adapter, err := New(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNativeLoadSlashHeadersBindToNormalizedSchema(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, adapter.EnsureDataset(ctx, "aws_billing"))

	ref := backend.TableRef{Dataset: "aws_billing", Table: "acme_2024_01"}
	columns := []manifest.Column{
		{Name: "identity/LineItemId", Type: types.ColumnString},
		{Name: "lineItem/UnblendedCost", Type: types.ColumnDecimal},
	}
	batch, err := adapter.Writer().Begin(ctx, ref, columns, backend.DispositionReplace)
	require.NoError(t, err)
	_, err = batch.Commit(ctx)
	require.NoError(t, err)

	path := writeCSV(t,
		"identity/LineItemId,lineItem/UnblendedCost\nitem-1,1.50\nitem-2,2.25\n")
	rows, err := adapter.NativeLoad(ctx, ref, reader.FileRef{
		Key:       "data/acme-1.csv",
		Format:    types.ExportFormatCSV,
		LocalPath: path,
	}, objstore.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)

	names, err := adapter.ColumnNames(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"identity_LineItemId", "lineItem_UnblendedCost"}, names)

	count, err := adapter.RowCount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestNativeLoadFreshTableNormalizesColumns(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()
	require.NoError(t, adapter.EnsureDataset(ctx, "aws_billing"))

	ref := backend.TableRef{Dataset: "aws_billing", Table: "acme_2024_02"}
	path := writeCSV(t, "bill/PayerAccountId,lineItem/UsageAmount\n123,4.5\n")

	_, err := adapter.NativeLoad(ctx, ref, reader.FileRef{
		Key:       "data/acme-2.csv",
		Format:    types.ExportFormatCSV,
		LocalPath: path,
	}, objstore.Credentials{})
	require.NoError(t, err)

	count, err := adapter.RowCount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	names, err := adapter.ColumnNames(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"bill_PayerAccountId", "lineItem_UsageAmount"}, names)
}
