package types

import (
	"time"

	ierr "github.com/siteassist/billing-engine/internal/errors"
	"github.com/samber/lo"
)

// BillingCycle is the length of a subscription's billing period.
type BillingCycle string

const (
	BILLING_CYCLE_MONTHLY BillingCycle = "MONTHLY"
	BILLING_CYCLE_ANNUAL  BillingCycle = "ANNUAL"
)

func (c BillingCycle) String() string {
	return string(c)
}

func (c BillingCycle) Validate() error {
	allowed := []BillingCycle{
		BILLING_CYCLE_MONTHLY,
		BILLING_CYCLE_ANNUAL,
	}
	if !lo.Contains(allowed, c) {
		return ierr.NewError("invalid billing cycle").
			WithHint("Billing cycle must be MONTHLY or ANNUAL").
			WithReportableDetails(map[string]any{
				"billing_cycle":  c,
				"allowed_values": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NextBillingDate calculates the next billing date from the given period
// start for one billing cycle. It leverages calendar-aware date math so
// month-end starts clamp correctly (e.g. Jan 31 -> Feb 28) and leap years
// are handled.
func NextBillingDate(start time.Time, cycle BillingCycle) (time.Time, error) {
	switch cycle {
	case BILLING_CYCLE_MONTHLY:
		return AddClampedDate(start, 0, 1, 0), nil
	case BILLING_CYCLE_ANNUAL:
		return AddClampedDate(start, 1, 0, 0), nil
	default:
		return start, ierr.NewError("invalid billing cycle").
			WithHintf("Invalid billing cycle: %s", cycle).
			Mark(ierr.ErrValidation)
	}
}

// AddClampedDate adds the given years/months/days to t, clamping the day of
// month to the last valid day of the target month instead of letting it
// roll over the way time.AddDate does.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// If we move beyond December it adjusts correctly, for example adding
	// two months to November lands on January next year.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d + days
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location())
}
