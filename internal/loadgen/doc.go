/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package loadgen provides an open-loop load generator for the HelloService.
//
// Calls are issued at a fixed rate regardless of how fast the server answers.
// Every tick takes a permit from the InflightGate (or is counted as rejected by the cap),
// the Dispatcher sends the call asynchronously over one of the connections in round-robin order,
// and the ResponseCollector accounts the outcome on its own worker pool and returns the permit.
// Phases (steady, burst, recovery and optionally an endless steady loop) are run one after another
// by the PhaseRunner, while the StatsReporter periodically logs the counters.
package loadgen
