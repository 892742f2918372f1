// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fx

import (
	"slices"
	"sync"
	"time"

	"code.hybscloud.com/kont"
)

// Clock is the time capability consumed by schedules, [Sleep] and
// [Timeout]. It is read from the environment under [ClockTag].
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Sleep suspends the calling fiber for d. It must be interruptible.
	Sleep(d time.Duration) Effect[Unit]
}

// ClockTag is the environment key of the [Clock] service.
var ClockTag = NewTag[Clock]("fx.Clock")

// LiveClock reads the system clock and sleeps on runtime timers.
type LiveClock struct{}

// Now returns time.Now().
func (LiveClock) Now() time.Time { return time.Now() }

// Sleep suspends for d on a runtime timer; interruption stops the timer.
func (LiveClock) Sleep(d time.Duration) Effect[Unit] {
	if d <= 0 {
		return Skip()
	}
	return AsyncInterrupt(func(resume func(Effect[Unit])) kont.Either[Effect[Unit], Effect[Unit]] {
		t := time.AfterFunc(d, func() { resume(Skip()) })
		return kont.Left[Effect[Unit], Effect[Unit]](SyncTotal(func() Unit {
			t.Stop()
			return Unit{}
		}))
	})
}

// ManualClock is a deterministic clock. Time only moves through
// [ManualClock.Adjust] and [ManualClock.SetTime], which wake the sleepers
// whose deadline has passed, earliest first.
type ManualClock struct {
	mu       sync.Mutex
	now      time.Time
	sleepers []*manualSleeper
}

type manualSleeper struct {
	at   time.Time
	wake func()
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep suspends until the clock has been moved past now+d.
func (c *ManualClock) Sleep(d time.Duration) Effect[Unit] {
	if d <= 0 {
		return Skip()
	}
	return AsyncInterrupt(func(resume func(Effect[Unit])) kont.Either[Effect[Unit], Effect[Unit]] {
		s := &manualSleeper{wake: func() { resume(Skip()) }}
		c.mu.Lock()
		s.at = c.now.Add(d)
		c.sleepers = append(c.sleepers, s)
		c.mu.Unlock()
		return kont.Left[Effect[Unit], Effect[Unit]](SyncTotal(func() Unit {
			c.remove(s)
			return Unit{}
		}))
	})
}

func (c *ManualClock) remove(s *manualSleeper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.sleepers, s); i >= 0 {
		c.sleepers = slices.Delete(c.sleepers, i, i+1)
	}
}

// Adjust moves the clock forward by d.
func (c *ManualClock) Adjust(d time.Duration) {
	c.mu.Lock()
	c.advanceLocked(c.now.Add(d))
}

// SetTime moves the clock to t. Moving backwards wakes no sleeper.
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.advanceLocked(t)
}

// advanceLocked sets the time, releases the lock and wakes due sleepers.
func (c *ManualClock) advanceLocked(t time.Time) {
	c.now = t
	var due []*manualSleeper
	rest := c.sleepers[:0]
	for _, s := range c.sleepers {
		if !s.at.After(t) {
			due = append(due, s)
		} else {
			rest = append(rest, s)
		}
	}
	clear(c.sleepers[len(rest):])
	c.sleepers = rest
	c.mu.Unlock()
	slices.SortStableFunc(due, func(a, b *manualSleeper) int {
		return a.at.Compare(b.at)
	})
	for _, s := range due {
		s.wake()
	}
}

// Sleepers returns the number of fibers currently sleeping on the clock.
func (c *ManualClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleepers)
}

// clockFrom returns the clock in env, or [LiveClock].
func clockFrom(env *Env) Clock {
	if c, ok := Lookup(env, ClockTag); ok && c != nil {
		return c
	}
	return LiveClock{}
}

// CurrentTime produces the time of the environment's clock.
func CurrentTime() Effect[time.Time] {
	return AccessEffect(func(env *Env) Effect[time.Time] {
		clock := clockFrom(env)
		return SyncTotal(clock.Now)
	})
}

// Sleep suspends the current fiber for d on the environment's clock.
func Sleep(d time.Duration) Effect[Unit] {
	return AccessEffect(func(env *Env) Effect[Unit] {
		return clockFrom(env).Sleep(d)
	})
}

// Delay runs e after d.
func Delay[A any](e Effect[A], d time.Duration) Effect[A] {
	return ZipRight(Sleep(d), e)
}
