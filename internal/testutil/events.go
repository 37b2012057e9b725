package testutil

import (
	"time"

	"github.com/hupe1980/agentd/core"
)

// Drain collects events until ch is closed or timeout elapses. The second
// return value is false on timeout.
func Drain(ch <-chan core.Event, timeout time.Duration) ([]core.Event, bool) {
	var events []core.Event

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events, true
			}
			events = append(events, ev)
		case <-timer.C:
			return events, false
		}
	}
}

// CountType returns how many events in evs have type t.
func CountType(evs []core.Event, t core.EventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == t {
			n++
		}
	}
	return n
}
