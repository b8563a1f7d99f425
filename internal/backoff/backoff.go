package backoff

import "time"

// Backoff answers how long to wait after a given number of failed attempts
// before trying again.
type Backoff interface {
	Duration(retries int) time.Duration
}

type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = (*ConstantBackoff)(nil)

func (b *ConstantBackoff) Duration(_ int) time.Duration {
	return b.Interval
}

type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
}

var _ Backoff = (*ExponentialBackoff)(nil)

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
	}
	return d
}

// ScheduledBackoff follows a fixed schedule of delays. Beyond the end of the
// schedule it keeps returning the last value.
type ScheduledBackoff struct {
	Schedule []time.Duration
}

var _ Backoff = (*ScheduledBackoff)(nil)

func (b *ScheduledBackoff) Duration(retries int) time.Duration {
	if len(b.Schedule) == 0 {
		return 0
	}
	if retries >= len(b.Schedule) {
		return b.Schedule[len(b.Schedule)-1]
	}
	return b.Schedule[retries]
}
