package types

import (
	"time"

	ierr "github.com/costplane/costplane/internal/errors"
)

// BillingPeriod is a calendar month, normalized to first-of-month UTC.
// The zero value is invalid.
type BillingPeriod struct {
	t time.Time
}

// NewBillingPeriod builds a billing period from a year and month.
func NewBillingPeriod(year int, month time.Month) BillingPeriod {
	return BillingPeriod{t: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)}
}

// BillingPeriodOf truncates any timestamp to its containing month.
func BillingPeriodOf(t time.Time) BillingPeriod {
	u := t.UTC()
	return NewBillingPeriod(u.Year(), u.Month())
}

// ParseBillingPeriod parses the YYYY-MM form used on the CLI and in
// AWS CUR v2 path segments.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return BillingPeriod{}, ierr.WithError(err).
			WithHintf("billing period must be in YYYY-MM form, got %q", s).
			Mark(ierr.ErrValidation)
	}
	return BillingPeriodOf(t), nil
}

func (p BillingPeriod) IsZero() bool {
	return p.t.IsZero()
}

// Time returns the first-of-month UTC timestamp.
func (p BillingPeriod) Time() time.Time {
	return p.t
}

func (p BillingPeriod) Year() int {
	return p.t.Year()
}

func (p BillingPeriod) Month() time.Month {
	return p.t.Month()
}

// String renders the YYYY-MM form.
func (p BillingPeriod) String() string {
	return p.t.Format("2006-01")
}

// TableSuffix renders the YYYY_MM form used in table names.
func (p BillingPeriod) TableSuffix() string {
	return p.t.Format("2006_01")
}

func (p BillingPeriod) Equal(o BillingPeriod) bool {
	return p.t.Equal(o.t)
}

func (p BillingPeriod) Before(o BillingPeriod) bool {
	return p.t.Before(o.t)
}

func (p BillingPeriod) After(o BillingPeriod) bool {
	return p.t.After(o.t)
}

// InRange reports whether p falls within [start, end] at month granularity.
// A zero bound is open.
func (p BillingPeriod) InRange(start, end BillingPeriod) bool {
	if !start.IsZero() && p.Before(start) {
		return false
	}
	if !end.IsZero() && p.After(end) {
		return false
	}
	return true
}
