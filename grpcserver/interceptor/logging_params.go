/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// loggableIntMap is a map that can be logged as an object with logf encoder.
type loggableIntMap map[string]int64

// EncodeLogfObject encodes the map as a logf object field.
func (lm loggableIntMap) EncodeLogfObject(e logf.FieldEncoder) error {
	for key, value := range lm {
		e.EncodeFieldInt64(key, value)
	}
	return nil
}

// LoggingParams stores parameters for the gRPC logging interceptor
// that may be modified dynamically by the other underlying interceptors/handlers.
// The handler may run on an admission worker goroutine, so all the methods are safe for concurrent use.
type LoggingParams struct {
	mu        sync.Mutex
	fields    []log.Field
	timeSlots loggableIntMap
}

// ExtendFields extends list of fields that will be logged by the logging interceptor.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotInt sets (if new) or adds duration value to the element of the time_slots map
func (lp *LoggingParams) AddTimeSlotInt(name string, dur int64) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.timeSlots == nil {
		lp.timeSlots = make(loggableIntMap, 1)
	}
	lp.timeSlots[name] += dur
}

// AddTimeSlotDurationInMs sets (if new) or adds duration value in milliseconds to the element of the time_slots map
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	lp.AddTimeSlotInt(name, dur.Milliseconds())
}

func (lp *LoggingParams) getFields() []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]log.Field(nil), lp.fields...)
}

func (lp *LoggingParams) getTimeSlots() loggableIntMap {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	res := make(loggableIntMap, len(lp.timeSlots))
	for k, v := range lp.timeSlots {
		res[k] = v
	}
	return res
}
