package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costplane/costplane/internal/testutil"
)

func TestRefreshUnifiedViewByName(t *testing.T) {
	adapter := testutil.NewFakeAdapter()
	adapter.UnionByName = true
	adapter.Tables["aws_billing.my_report_2024_01"] = nil
	adapter.Tables["aws_billing.my_report_2024_02"] = nil

	err := RefreshUnifiedView(context.Background(), adapter, "aws_billing", "My-Report")
	require.NoError(t, err)

	sql := adapter.Views["aws_billing.my_report_unified"]
	assert.Equal(t,
		"SELECT * FROM aws_billing.my_report_2024_01 UNION ALL BY NAME SELECT * FROM aws_billing.my_report_2024_02",
		sql)
}

func TestRefreshUnifiedViewAligned(t *testing.T) {
	adapter := testutil.NewFakeAdapter()
	adapter.Tables["aws_billing.my_report_2024_01"] = nil
	adapter.Columns["aws_billing.my_report_2024_01"] = []string{"a", "b"}
	adapter.Tables["aws_billing.my_report_2024_02"] = nil
	adapter.Columns["aws_billing.my_report_2024_02"] = []string{"b", "c"}

	err := RefreshUnifiedView(context.Background(), adapter, "aws_billing", "My-Report")
	require.NoError(t, err)

	sql := adapter.Views["aws_billing.my_report_unified"]
	assert.Equal(t,
		"SELECT a, b, NULL AS c FROM aws_billing.my_report_2024_01"+
			" UNION ALL "+
			"SELECT NULL AS a, b, c FROM aws_billing.my_report_2024_02",
		sql)
}

func TestRefreshUnifiedViewNoTables(t *testing.T) {
	adapter := testutil.NewFakeAdapter()
	err := RefreshUnifiedView(context.Background(), adapter, "aws_billing", "My-Report")
	require.NoError(t, err)
	assert.Empty(t, adapter.Views)
}

func TestRefreshUnifiedViewExcludesOtherExports(t *testing.T) {
	adapter := testutil.NewFakeAdapter()
	adapter.UnionByName = true
	adapter.Tables["aws_billing.my_report_2024_01"] = nil
	adapter.Tables["aws_billing.other_report_2024_01"] = nil
	adapter.Tables["aws_billing.billing_data"] = nil

	err := RefreshUnifiedView(context.Background(), adapter, "aws_billing", "my_report")
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM aws_billing.my_report_2024_01",
		adapter.Views["aws_billing.my_report_unified"])
}
