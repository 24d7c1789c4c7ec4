/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// TickFunc is called on every tick of a Schedule. It must not block.
type TickFunc func()

// Schedule fires ticks at a fixed rate until its end time. It is created by StartSchedule.
// Tick n is due at start+n*period, so a slow tick does not shift the following ones.
// Ticks that are overdue are fired immediately one after another (the load is open-loop),
// but only while the end time has not passed: once it has, the remaining ticks are dropped.
type Schedule struct {
	start  time.Time
	end    time.Time
	period time.Duration
	tick   TickFunc

	ticks       atomic.Uint64
	finished    chan struct{}
	finishOnce  sync.Once
	finishTimer *time.Timer
	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}
}

// StartSchedule starts firing ticks at the given rate (per second) for the given duration.
// It returns nil if the rate or the duration is not positive, meaning the phase is skipped.
// Ticks due at or after the end are not fired. The caller must call Stop in any case.
func StartSchedule(rate float64, duration time.Duration, tick TickFunc) *Schedule {
	if rate <= 0 || duration <= 0 {
		return nil
	}
	period := time.Duration(float64(time.Second) / rate)
	if period <= 0 {
		period = 1
	}
	now := time.Now()
	s := &Schedule{
		start:    now,
		end:      now.Add(duration),
		period:   period,
		tick:     tick,
		finished: make(chan struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	// Finished is closed on time even if a tick overruns the end.
	s.finishTimer = time.AfterFunc(duration, s.finish)
	go s.run()
	return s
}

func (s *Schedule) finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

func (s *Schedule) run() {
	defer close(s.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	var n int64
	for {
		select {
		case <-s.stop:
			return
		case <-timer.C:
		}

		for {
			now := time.Now()
			if !now.Before(s.end) {
				s.finish()
				<-s.stop
				return
			}
			due := s.start.Add(time.Duration(n) * s.period)
			if !due.Before(s.end) {
				timer.Reset(s.end.Sub(now))
				break
			}
			if due.After(now) {
				timer.Reset(due.Sub(now))
				break
			}
			s.tick()
			s.ticks.Inc()
			n++
		}
	}
}

// Stop stops firing ticks and waits until the ticking goroutine exits. It's safe to call Stop several times.
func (s *Schedule) Stop() {
	s.stopOnce.Do(func() {
		s.finishTimer.Stop()
		close(s.stop)
	})
	<-s.done
}

// Finished returns a channel that is closed at the schedule's end time, unless the schedule is stopped earlier.
func (s *Schedule) Finished() <-chan struct{} {
	return s.finished
}

// Done returns a channel that is closed after the Schedule is stopped.
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Ticks returns the number of fired ticks.
func (s *Schedule) Ticks() uint64 {
	return s.ticks.Load()
}

// Period returns the interval between two ticks.
func (s *Schedule) Period() time.Duration {
	return s.period
}

// End returns the time after which no more ticks are fired.
func (s *Schedule) End() time.Time {
	return s.end
}
