package reader_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/objstore"
	"github.com/costplane/costplane/internal/reader"
	"github.com/costplane/costplane/internal/testutil"
	"github.com/costplane/costplane/internal/types"
)

func TestCSVReaderStreams(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("bucket")
	store.SetObject("data/r-1.csv", []byte(
		"identity/LineItemId,lineItem/UnblendedCost\nitem-1,1.50\nitem-2,\n",
	), time.Now())

	r := reader.NewCSVReader(store)
	var records []reader.Record
	err := r.Read(context.Background(), reader.FileRef{
		Bucket: "bucket",
		Key:    "data/r-1.csv",
		Format: types.ExportFormatCSV,
	}, objstore.Credentials{}, func(rec reader.Record) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "item-1", records[0]["identity_LineItemId"])
	assert.Equal(t, "1.50", records[0]["lineItem_UnblendedCost"])
	// Empty csv cells come through as nil, not empty strings.
	assert.Nil(t, records[1]["lineItem_UnblendedCost"])
}

func TestCSVReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	store := testutil.NewInMemoryObjectStore("bucket")
	store.SetObject("data/r-1.csv.gz", buf.Bytes(), time.Now())

	r := reader.NewCSVReader(store)
	var records []reader.Record
	err = r.Read(context.Background(), reader.FileRef{
		Bucket: "bucket",
		Key:    "data/r-1.csv.gz",
		Format: types.ExportFormatCSV,
	}, objstore.Credentials{}, func(rec reader.Record) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0]["a"])
	assert.Equal(t, "2", records[0]["b"])
}

func TestCSVReaderMalformedRowFailsFile(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("bucket")
	store.SetObject("data/bad.csv", []byte("a,b\n1,2\n\"unterminated\n"), time.Now())

	r := reader.NewCSVReader(store)
	err := r.Read(context.Background(), reader.FileRef{
		Bucket: "bucket",
		Key:    "data/bad.csv",
		Format: types.ExportFormatCSV,
	}, objstore.Credentials{}, func(reader.Record) error { return nil })
	assert.Error(t, err)
}

func TestAutoReaderStreamsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staged.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("identity/LineItemId,lineItem/UnblendedCost\nitem-1,1.50\n"), 0o644))

	r := reader.NewAutoReader()
	var records []reader.Record
	err := r.Read(context.Background(), reader.FileRef{
		Key:       "data/staged.csv",
		Format:    types.ExportFormatCSV,
		LocalPath: path,
	}, objstore.Credentials{}, func(rec reader.Record) error {
		records = append(records, rec)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "item-1", records[0]["identity_LineItemId"])
	assert.Equal(t, "1.50", records[0]["lineItem_UnblendedCost"])
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		override types.ExportFormat
		want     types.ExportFormat
		wantErr  bool
	}{
		{"parquet extension", "data/p.snappy.parquet", "", types.ExportFormatParquet, false},
		{"csv extension", "data/r.csv", "", types.ExportFormatCSV, false},
		{"gzipped csv extension", "data/r.csv.gz", "", types.ExportFormatCSV, false},
		{"override wins", "data/r.bin", types.ExportFormatCSV, types.ExportFormatCSV, false},
		{"auto falls through to extension", "data/r.csv", types.ExportFormatAuto, types.ExportFormatCSV, false},
		{"unknown extension", "data/r.bin", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reader.DetectFormat(tt.key, tt.override)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeColumnName(t *testing.T) {
	assert.Equal(t, "lineItem_UnblendedCost", reader.NormalizeColumnName("lineItem/UnblendedCost"))
	assert.Equal(t, "plain", reader.NormalizeColumnName("plain"))
}
