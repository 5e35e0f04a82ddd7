package usage

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

// Clock supplies "now" for day-boundary checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// NewSystemClock loads tz (IANA name) and returns a clock bound to it.
func NewSystemClock(tz string) (SystemClock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return SystemClock{}, fmt.Errorf("op=usage.NewSystemClock: %w", err)
	}
	return SystemClock{Location: loc}, nil
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// ManualClock is a settable clock for tests and replay tooling.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a manual clock at t.
func NewManualClock(t time.Time) *ManualClock { return &ManualClock{now: t} }

// Now returns the stored time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// dayKey identifies a calendar day in the clock's own location.
func dayKey(t time.Time) int { return t.Year()*1000 + t.YearDay() }

var shortWeekdays = [...]string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}

// Stamp renders t the way prompts show the current time: "Пт, 02.01.2026, 15:04".
func Stamp(t time.Time) string {
	return shortWeekdays[t.Weekday()] + ", " + t.Format("02.01.2006, 15:04")
}
