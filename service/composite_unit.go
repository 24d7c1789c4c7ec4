/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
)

// CompositeUnit runs several units as one (e.g. the gRPC server next to the metrics endpoint).
type CompositeUnit struct {
	Units []Unit

	finishedOnce sync.Once
	finished     chan struct{}
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start starts all units concurrently and blocks until every Start returns.
//
// If a unit fails (its Start reports to its error channel), the others are stopped non-gracefully
// and a CompositeUnitError with the failures and the stop errors is sent to fatalError.
// Start then returns without waiting for the remaining units.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	failures := make(chan error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				failures <- err
			default:
			}
		}(u)
	}
	allReturned := make(chan struct{})
	go func() {
		wg.Wait()
		close(allReturned)
	}()

	var firstErr error
	select {
	case firstErr = <-failures:
	case <-allReturned:
		select {
		case firstErr = <-failures:
		default:
			return
		}
	}

	stopErr := cu.Stop(false)
	errs := append(make([]error, 0, len(cu.Units)), firstErr)
	for drained := false; !drained; {
		select {
		case err := <-failures:
			errs = append(errs, err)
		default:
			drained = true
		}
	}
	var cue *CompositeUnitError
	if errors.As(stopErr, &cue) {
		errs = append(errs, cue.UnitErrors...)
	}
	fatalError <- &CompositeUnitError{errs}
}

// Stop stops all units in the composition (each in its own separate goroutine).
// Errors that occurred while stopping the units are collected and single CompositeUnitError is returned.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	results := make(chan error, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, s := range cu.Units {
		go func(s Unit) {
			defer wg.Done()
			results <- s.Stop(gracefully)
		}(s)
	}
	wg.Wait()

	close(results)
	var errs []error
	for err := range results {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// Finished returns a channel that is closed when all units implementing Finisher have finished their work.
// If there are no such units, nil is returned and the composition never finishes on its own.
func (cu *CompositeUnit) Finished() <-chan struct{} {
	cu.finishedOnce.Do(func() {
		var chans []<-chan struct{}
		for _, u := range cu.Units {
			if f, ok := u.(Finisher); ok {
				if ch := f.Finished(); ch != nil {
					chans = append(chans, ch)
				}
			}
		}
		if len(chans) == 0 {
			return
		}
		cu.finished = make(chan struct{})
		go func() {
			for _, ch := range chans {
				<-ch
			}
			close(cu.finished)
		}()
	})
	if cu.finished == nil {
		return nil
	}
	return cu.finished
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, s := range cu.Units {
		if mr, ok := s.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, s := range cu.Units {
		if mr, ok := s.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is an error which may occurs in CompositeUnit's methods.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error returns a string representation of a units composition error.
func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap returns errors of the units, so errors.Is and errors.As can inspect them.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
