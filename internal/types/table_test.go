package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTableName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "already clean",
			input: "my_cost_report",
			want:  "my_cost_report",
		},
		{
			name:  "uppercase and dashes",
			input: "My-Cost-Report",
			want:  "my_cost_report",
		},
		{
			name:  "spaces and slashes",
			input: "prod exports/daily",
			want:  "prod_exports_daily",
		},
		{
			name:  "special characters stripped",
			input: "cost!report@2024",
			want:  "costreport2024",
		},
		{
			name:  "leading digit gets prefix",
			input: "2024-report",
			want:  "export_2024_report",
		},
		{
			name:  "consecutive separators collapse",
			input: "a -- b",
			want:  "a_b",
		},
		{
			name:  "empty input",
			input: "",
			want:  "export",
		},
		{
			name:  "truncated to fifty characters",
			input: "a23456789012345678901234567890123456789012345678901234567890",
			want:  "a2345678901234567890123456789012345678901234567890",
		},
		{
			name:  "truncation landing on an underscore",
			input: "a234567890123456789012345678901234567890123456789_tail",
			want:  "a234567890123456789012345678901234567890123456789",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeTableName(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, SanitizeTableName(got), "sanitization must be idempotent")
		})
	}
}

func TestTableName(t *testing.T) {
	period := NewBillingPeriod(2024, time.March)
	assert.Equal(t, "my_report_2024_03", TableName("My-Report", period))
}

func TestUnifiedViewName(t *testing.T) {
	assert.Equal(t, "my_report_unified", UnifiedViewName("My-Report"))
}
