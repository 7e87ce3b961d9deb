// Package clockhost implements the wall-clock, monotonic-clock, and timed
// pollable import surface (component J, spec §4.J). No repo in the
// retrieval pack implements a WASI preview-2 clock host directly (the
// pack's only clock reference is the type alias to
// `wasi/clocks/wallclock.DateTime` in the bytecodealliance WIT bindings,
// which defines the wire shape but not a host implementation), so Host is
// built directly from spec §4.J's prose and reuses the busy-wait Pollable
// already established for component F — the same "environments without
// suspension" fallback spec §4.J itself invokes.
package clockhost

import (
	"time"

	"github.com/tjfontaine/wasihost/internal/iostreams"
)

// Host serves wall-clock, monotonic-clock, and timed-pollable requests.
type Host struct {
	boot time.Time // monotonic reference point; Since(boot) never regresses
}

// New builds a Host whose monotonic clock is relative to the moment of
// construction, per spec §4.J "a process-boot-relative source".
func New() *Host {
	return &Host{boot: time.Now()}
}

// WallNow returns seconds and nanoseconds since the Unix epoch, per spec
// §4.J "with host-available precision".
func (h *Host) WallNow() (sec int64, nsec uint32) {
	now := time.Now()
	return now.Unix(), uint32(now.Nanosecond())
}

// MonotonicNow returns nanoseconds since Host construction. Unlike
// WallNow it never regresses even if the wall clock is adjusted, per
// spec §4.J "monotonic now uses a process-boot-relative source".
func (h *Host) MonotonicNow() uint64 {
	return uint64(time.Since(h.boot).Nanoseconds())
}

// SubscribeDuration returns a Pollable that becomes ready once d has
// elapsed. Readiness is computed from a fixed deadline rather than a
// timer callback, so repeated Ready() polls are cheap and exact; Block
// falls back to iostreams' 1ms busy-wait slices, matching spec §4.J
// "busy-waiting in small slices to stay cooperative" for hosts without
// true suspension.
func (h *Host) SubscribeDuration(d time.Duration) *iostreams.Pollable {
	deadline := time.Now().Add(d)
	ready := func() bool { return !time.Now().Before(deadline) }
	return iostreams.NewPollable(ready, nil)
}
