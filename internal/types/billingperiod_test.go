package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillingPeriod(t *testing.T) {
	p, err := ParseBillingPeriod("2024-03")
	require.NoError(t, err)
	assert.Equal(t, 2024, p.Year())
	assert.Equal(t, time.March, p.Month())
	assert.Equal(t, "2024-03", p.String())
	assert.Equal(t, "2024_03", p.TableSuffix())

	_, err = ParseBillingPeriod("202403")
	assert.Error(t, err)
	_, err = ParseBillingPeriod("2024-13")
	assert.Error(t, err)
}

func TestBillingPeriodOf(t *testing.T) {
	p := BillingPeriodOf(time.Date(2024, 3, 17, 22, 15, 0, 0, time.UTC))
	assert.Equal(t, NewBillingPeriod(2024, time.March), p)
}

func TestBillingPeriodInRange(t *testing.T) {
	var open BillingPeriod
	jan := NewBillingPeriod(2024, time.January)
	mar := NewBillingPeriod(2024, time.March)
	jun := NewBillingPeriod(2024, time.June)

	tests := []struct {
		name       string
		p          BillingPeriod
		start, end BillingPeriod
		want       bool
	}{
		{"both bounds open", mar, open, open, true},
		{"inside closed range", mar, jan, jun, true},
		{"on start bound", jan, jan, jun, true},
		{"on end bound", jun, jan, jun, true},
		{"before start", jan, mar, jun, false},
		{"after end", jun, jan, mar, false},
		{"open start", jan, open, mar, true},
		{"open end", jun, mar, open, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.InRange(tt.start, tt.end))
		})
	}
}
