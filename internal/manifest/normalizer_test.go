package manifest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/types"
)

func TestNormalizeAWSV1(t *testing.T) {
	raw := []byte(`{
		"assemblyId": "20240101T000000-abcdef",
		"billingPeriod": {"start": "20240101T000000.000Z", "end": "20240201T000000.000Z"},
		"reportKeys": [
			"reports/r/20240101-20240201/20240101T000000-abcdef/r-1.csv.gz",
			"reports/r/20240101-20240201/20240101T000000-abcdef/r-2.csv.gz"
		],
		"columns": [
			{"category": "identity", "name": "LineItemId", "type": "String"},
			{"category": "lineItem", "name": "UsageStartDate", "type": "DateTime"},
			{"category": "lineItem", "name": "UnblendedCost", "type": "BigDecimal"},
			{"category": "resourceTags", "name": "user:Team", "type": "OptionalString"},
			{"category": "lineItem", "name": "UsageAmount", "type": "Interval"}
		]
	}`)

	ref := manifest.Ref{
		Bucket:        "cur-bucket",
		Key:           "reports/r/20240101-20240201/r-Manifest.json",
		FormatVersion: types.FormatV1,
	}
	m, err := manifest.NormalizeAWS(raw, ref, "r")
	require.NoError(t, err)

	assert.Equal(t, types.VendorAWS, m.Vendor)
	assert.Equal(t, "20240101T000000-abcdef", m.VersionID)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), m.BillingPeriod)
	assert.Len(t, m.DataFiles, 2)

	require.Len(t, m.Columns, 5)
	assert.Equal(t, manifest.Column{Name: "identity_LineItemId", Type: types.ColumnString}, m.Columns[0])
	assert.Equal(t, manifest.Column{Name: "lineItem_UsageStartDate", Type: types.ColumnDateTime}, m.Columns[1])
	assert.Equal(t, manifest.Column{Name: "lineItem_UnblendedCost", Type: types.ColumnDecimal}, m.Columns[2])
	// Colons in tag column names become underscores.
	assert.Equal(t, manifest.Column{Name: "resourceTags_user_Team", Type: types.ColumnString}, m.Columns[3])
	// Interval is textual.
	assert.Equal(t, types.ColumnString, m.Columns[4].Type)
}

func TestNormalizeAWSV1MissingAssemblyID(t *testing.T) {
	raw := []byte(`{"billingPeriod": {"start": "20240101T000000.000Z"}, "reportKeys": []}`)
	_, err := manifest.NormalizeAWS(raw, manifest.Ref{FormatVersion: types.FormatV1}, "r")
	assert.True(t, ierr.IsManifestMalformed(err))
}

func TestNormalizeAWSV2(t *testing.T) {
	raw := []byte(`{
		"executionId": "exec-42",
		"dataFiles": [
			"s3://cur-bucket/exports/my-export/data/BILLING_PERIOD=2024-01/part-0001.snappy.parquet"
		],
		"columns": [
			{"name": "line_item_usage_start_date", "type": "timestamp"},
			{"name": "line_item_unblended_cost", "type": "double"},
			{"name": "resource_tags", "type": "map"},
			{"name": "discount", "type": "struct"},
			{"name": "line_item_line_item_id", "type": "string"}
		]
	}`)

	ref := manifest.Ref{
		Bucket:        "cur-bucket",
		Key:           "exports/my-export/metadata/BILLING_PERIOD=2024-01/my-export-Manifest.json",
		BillingPeriod: types.NewBillingPeriod(2024, time.January),
		FormatVersion: types.FormatV2,
	}
	m, err := manifest.NormalizeAWS(raw, ref, "my-export")
	require.NoError(t, err)

	assert.Equal(t, "exec-42", m.VersionID)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), m.BillingPeriod)
	// Full URIs are cut down to bucket-relative keys.
	assert.Equal(t, []string{"data/BILLING_PERIOD=2024-01/part-0001.snappy.parquet"}, m.DataFiles)

	require.Len(t, m.Columns, 5)
	assert.Equal(t, types.ColumnDateTime64, m.Columns[0].Type)
	assert.Equal(t, types.ColumnFloat64, m.Columns[1].Type)
	assert.Equal(t, types.ColumnMap, m.Columns[2].Type)
	assert.Equal(t, types.ColumnTuple, m.Columns[3].Type)
	assert.Equal(t, types.ColumnString, m.Columns[4].Type)
}

func TestNormalizeAWSV2MissingExecutionID(t *testing.T) {
	raw := []byte(`{"dataFiles": [], "columns": []}`)
	_, err := manifest.NormalizeAWS(raw, manifest.Ref{
		FormatVersion: types.FormatV2,
		BillingPeriod: types.NewBillingPeriod(2024, time.January),
	}, "r")
	assert.True(t, ierr.IsManifestMalformed(err))
}

func TestSynthesizeAzure(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		partitioned bool
		wantVersion string
		wantErr     bool
	}{
		{
			name:        "partitioned execution folder",
			key:         "dir/exp/20240101-20240131/a1b2c3/part-1.csv",
			partitioned: true,
			wantVersion: "a1b2c3",
		},
		{
			name:        "single file timestamp token",
			key:         "dir/exp/20240101-20240131/exp_20240201T061510.csv",
			partitioned: false,
			wantVersion: "20240201T061510",
		},
		{
			name:        "single file token before compound extension",
			key:         "dir/exp/20240101-20240131/exp_20240201T061510.csv.gz",
			partitioned: false,
			wantVersion: "20240201T061510",
		},
		{
			name:        "single file without token",
			key:         "dir/exp/20240101-20240131/export.csv",
			partitioned: false,
			wantErr:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := manifest.Ref{
				Bucket:        "exports",
				Key:           tt.key,
				BillingPeriod: types.NewBillingPeriod(2024, time.January),
			}
			m, err := manifest.SynthesizeAzure(ref, []string{tt.key}, "exp", tt.partitioned)
			if tt.wantErr {
				assert.True(t, ierr.IsManifestMalformed(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.VendorAzure, m.Vendor)
			assert.Equal(t, tt.wantVersion, m.VersionID)
			assert.Empty(t, m.Columns)
		})
	}
}
