// Package iostreams implements the custom input/output stream and
// pollable primitives from spec §4.F: a stream derived from a handful of
// host-supplied callbacks, exposing both a non-blocking and a blocking
// surface, plus a subscribe/pollable readiness abstraction. Within this
// module the clock host's SubscribeDuration is its only user.
package iostreams

import "time"

// pollInterval is the busy-wait slice used when a Pollable has no
// backing signal channel, mirroring the clock host's subscribe_duration
// fallback (spec §4.J) for environments without true suspension.
const pollInterval = time.Millisecond

// Pollable is the readiness handle returned by a stream's Subscribe.
// It is ready whenever at least one byte (input) or slot (output) is
// available, per spec §4.F.
type Pollable struct {
	ready func() bool
	// signal, if non-nil, is closed or sent to whenever the backing
	// channel changes state; Block selects on it instead of busy-waiting.
	signal <-chan struct{}
}

func newPollable(ready func() bool, signal <-chan struct{}) *Pollable {
	return &Pollable{ready: ready, signal: signal}
}

// NewPollable is the exported constructor for callers outside this
// package that need the same readiness primitive without a backing
// stream of their own — namely the clock host's subscribe_duration
// (spec §4.J), which is ready after a deadline rather than when a byte
// arrives but otherwise busy-waits exactly the way Block already does.
func NewPollable(ready func() bool, signal <-chan struct{}) *Pollable {
	return newPollable(ready, signal)
}

// Ready reports whether the pollable is immediately ready, without
// blocking.
func (p *Pollable) Ready() bool { return p.ready() }

// Block waits until the pollable becomes ready. With a signal channel it
// selects on it directly; otherwise it busy-waits in small slices, per
// spec §4.F/§4.J's "environments without suspension" fallback.
func (p *Pollable) Block() {
	if p.ready() {
		return
	}
	if p.signal == nil {
		for !p.ready() {
			time.Sleep(pollInterval)
		}
		return
	}
	for !p.ready() {
		<-p.signal
	}
}
