// Package clock is the time source port. SLA computations and the
// escalation sweep take a Clock so tests can drive them with a fake.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock supplies the current time and periodic tickers.
type Clock = clockwork.Clock

// Ticker delivers ticks on Chan until Stop is called.
type Ticker = clockwork.Ticker

// FakeClock only moves when Advance is called; tickers fire as it does.
type FakeClock = clockwork.FakeClock

// Real returns the wall clock, reporting UTC.
func Real() Clock { return utcClock{clockwork.NewRealClock()} }

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock { return clockwork.NewFakeClockAt(initial) }

type utcClock struct {
	clockwork.Clock
}

func (c utcClock) Now() time.Time { return c.Clock.Now().UTC() }
