package manifest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/logger"
	"github.com/costplane/costplane/internal/manifest"
	"github.com/costplane/costplane/internal/testutil"
	"github.com/costplane/costplane/internal/types"
)

func TestAWSLocatorV1(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("cur-bucket")
	now := time.Now().UTC()

	store.SetObject("reports/my-report/20240101-20240201/my-report-Manifest.json", []byte("{}"), now)
	store.SetObject("reports/my-report/20240201-20240301/my-report-Manifest.json", []byte("{}"), now)
	// Nested per-assembly manifest copies must not match.
	store.SetObject("reports/my-report/20240101-20240201/abc123/my-report-Manifest.json", []byte("{}"), now)
	// Data files must not match.
	store.SetObject("reports/my-report/20240101-20240201/abc123/my-report-1.csv.gz", []byte("x"), now)
	// Other exports must not match.
	store.SetObject("reports/other-report/20240101-20240201/other-report-Manifest.json", []byte("{}"), now)

	loc := manifest.NewAWSLocator(store, "reports", "my-report", types.FormatV1, logger.NewNop())
	refs, err := loc.List(context.Background(), types.BillingPeriod{}, types.BillingPeriod{})
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "reports/my-report/20240101-20240201/my-report-Manifest.json", refs[0].Key)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), refs[0].BillingPeriod)
	assert.Equal(t, types.NewBillingPeriod(2024, time.February), refs[1].BillingPeriod)
	assert.Equal(t, "cur-bucket", refs[0].Bucket)
}

func TestAWSLocatorV2(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("cur-bucket")
	now := time.Now().UTC()

	store.SetObject("exports/my-export/metadata/BILLING_PERIOD=2024-01/my-export-Manifest.json", []byte("{}"), now)
	store.SetObject("exports/my-export/metadata/BILLING_PERIOD=2024-02/my-export-Manifest.json", []byte("{}"), now)
	// Data partitions must not match.
	store.SetObject("exports/my-export/data/BILLING_PERIOD=2024-01/part-0001.snappy.parquet", []byte("x"), now)

	loc := manifest.NewAWSLocator(store, "exports", "my-export", types.FormatV2, logger.NewNop())
	refs, err := loc.List(context.Background(), types.BillingPeriod{}, types.BillingPeriod{})
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), refs[0].BillingPeriod)
	assert.Equal(t, types.FormatV2, refs[0].FormatVersion)
}

func TestAWSLocatorDateRange(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("cur-bucket")
	now := time.Now().UTC()
	for _, folder := range []string{"20240101-20240201", "20240201-20240301", "20240301-20240401", "20240401-20240501"} {
		store.SetObject("reports/r/"+folder+"/r-Manifest.json", []byte("{}"), now)
	}

	loc := manifest.NewAWSLocator(store, "reports", "r", types.FormatV1, logger.NewNop())
	refs, err := loc.List(context.Background(),
		types.NewBillingPeriod(2024, time.February),
		types.NewBillingPeriod(2024, time.March))
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, types.NewBillingPeriod(2024, time.February), refs[0].BillingPeriod)
	assert.Equal(t, types.NewBillingPeriod(2024, time.March), refs[1].BillingPeriod)
}

func TestAWSLocatorSkipsUnparseablePeriod(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("cur-bucket")
	now := time.Now().UTC()
	store.SetObject("reports/r/20249901-20240201/r-Manifest.json", []byte("{}"), now)
	store.SetObject("reports/r/20240101-20240201/r-Manifest.json", []byte("{}"), now)

	loc := manifest.NewAWSLocator(store, "reports", "r", types.FormatV1, logger.NewNop())
	refs, err := loc.List(context.Background(), types.BillingPeriod{}, types.BillingPeriod{})
	require.NoError(t, err)

	require.Len(t, refs, 1)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), refs[0].BillingPeriod)
}

func TestAzureLocatorNewestWins(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("exports")
	older := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)

	store.SetObject("dir/exp/20240101-20240131/run1/exp_v1.csv", []byte("x"), older)
	store.SetObject("dir/exp/20240101-20240131/run2/exp_v2.csv", []byte("x"), newer)
	store.SetObject("dir/exp/20240201-20240229/run1/exp_v1.csv", []byte("x"), older)
	// Blobs outside a month folder are ignored.
	store.SetObject("dir/exp/stray.csv", []byte("x"), newer)

	loc := manifest.NewAzureLocator(store, "dir", "exp", true, logger.NewNop())
	refs, err := loc.List(context.Background(), types.BillingPeriod{}, types.BillingPeriod{})
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "dir/exp/20240101-20240131/run2/exp_v2.csv", refs[0].Key)
	assert.Equal(t, types.NewBillingPeriod(2024, time.January), refs[0].BillingPeriod)
	assert.Equal(t, types.NewBillingPeriod(2024, time.February), refs[1].BillingPeriod)
}

func TestAzureLocatorDataFiles(t *testing.T) {
	store := testutil.NewInMemoryObjectStore("exports")
	now := time.Now().UTC()
	store.SetObject("dir/exp/20240101-20240131/run2/part-1.csv", []byte("x"), now)
	store.SetObject("dir/exp/20240101-20240131/run2/part-2.csv", []byte("x"), now)
	store.SetObject("dir/exp/20240101-20240131/run1/part-1.csv", []byte("x"), now)

	partitioned := manifest.NewAzureLocator(store, "dir", "exp", true, logger.NewNop())
	files, err := partitioned.DataFiles(context.Background(), manifest.Ref{
		Bucket: "exports",
		Key:    "dir/exp/20240101-20240131/run2/part-1.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dir/exp/20240101-20240131/run2/part-1.csv",
		"dir/exp/20240101-20240131/run2/part-2.csv",
	}, files)

	single := manifest.NewAzureLocator(store, "dir", "exp", false, logger.NewNop())
	files, err = single.DataFiles(context.Background(), manifest.Ref{
		Bucket: "exports",
		Key:    "dir/exp/20240101-20240131/exp_20240201T0000.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/exp/20240101-20240131/exp_20240201T0000.csv"}, files)
}
