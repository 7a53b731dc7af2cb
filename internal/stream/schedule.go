package stream

import (
	"math"

	"github.com/congo-pay/paystream/internal/ledger"
)

// mulChecked multiplies two non-negative values, reporting false on overflow.
func mulChecked(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// Total is the amount deposited when the stream was opened.
func Total(s ledger.Stream) int64 {
	// validated against overflow at open
	return (s.EndTime - s.StartTime) * s.Rate
}

// VestedAt returns how much of the deposit belongs to the receiver at time t,
// clamped to the stream window.
func VestedAt(s ledger.Stream, t int64) int64 {
	switch {
	case t <= s.StartTime:
		return 0
	case t >= s.EndTime:
		return Total(s)
	default:
		return (t - s.StartTime) * s.Rate
	}
}

// Withdrawable returns the vested amount the receiver has not claimed yet.
func Withdrawable(s ledger.Stream, t int64) int64 {
	if w := VestedAt(s, t) - s.Withdrawn; w > 0 {
		return w
	}
	return 0
}

// entitlement is the cumulative amount the receiver may have withdrawn by now.
// A now before the start time is a clock defect and yields ErrAccountingUnderflow.
func entitlement(s ledger.Stream, now int64) (int64, error) {
	effective := now
	if effective > s.EndTime {
		effective = s.EndTime
	}
	if effective < s.StartTime {
		return 0, ErrAccountingUnderflow
	}
	return (effective - s.StartTime) * s.Rate, nil
}

// closingOwed is what the receiver is owed at close, computed from the raw
// time without capping at the end time. The result saturates instead of
// overflowing and may be negative when the clock is behind the start time.
func closingOwed(s ledger.Stream, now int64) int64 {
	if now < s.StartTime {
		v, ok := mulChecked(s.StartTime-now, s.Rate)
		if !ok || v > math.MaxInt64-s.Withdrawn {
			return math.MinInt64
		}
		return -v - s.Withdrawn
	}
	vested, ok := mulChecked(now-s.StartTime, s.Rate)
	if !ok {
		vested = math.MaxInt64
	}
	return vested - s.Withdrawn
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
