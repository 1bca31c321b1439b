// Bulk throughput speed test
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package speedtest implements the bulk IN/OUT throughput measurement loop:
// fixed-size payload writes against a busy-wait, iteration-bounded FIFO-idle
// check, with rolling min/max timing statistics and a stale-FIFO reset
// counter. Test control arrives as single-byte opcodes on a dedicated OUT
// endpoint.
package speedtest

import (
	"log"

	"github.com/trident-fw/trident/soc/sifive/clint"
	"github.com/trident-fw/trident/usb"
)

// payloadSize is the fixed per-packet size exercised by both directions of
// the throughput test.
const payloadSize = 512

// idleWaitIterations bounds the busy-wait for the IN FIFO to drain; there
// is no sleep, only a fixed iteration ceiling.
const idleWaitIterations = 100

// Test control opcodes, read as single bytes from the control endpoint.
const (
	CommandStartIn  = 0x23
	CommandStartOut = 0x42
)

// bulkInEndpoint, bulkOutEndpoint and controlEndpoint are the three
// endpoints the speed test personality uses: EP1 IN for bulk data, EP1 OUT
// for bulk data, and EP2 OUT for the single-byte test control opcodes.
const (
	bulkInEndpoint  = 1
	bulkOutEndpoint = 1
	controlEndpoint = 2
)

// direction tags which half of the test is currently active.
type direction int

const (
	stopped direction = iota
	in
	out
)

// TestStats tracks rolling min/max timing and counters for one test run.
type TestStats struct {
	WriteCount   uint64
	ResetCount   uint64
	MinWriteTime int64
	MaxWriteTime int64
	MinFlushTime int64
	MaxFlushTime int64
}

// Reset reinitializes the rolling min/max fields to sentinel values so the
// first sample always wins the comparison.
func (s *TestStats) Reset() {
	*s = TestStats{
		MinWriteTime: int64(^uint64(0) >> 1),
		MinFlushTime: int64(^uint64(0) >> 1),
	}
}

func (s *TestStats) observe(writeTime, flushTime int64, didReset bool) {
	s.WriteCount++

	if writeTime < s.MinWriteTime {
		s.MinWriteTime = writeTime
	}
	if writeTime > s.MaxWriteTime {
		s.MaxWriteTime = writeTime
	}
	if flushTime < s.MinFlushTime {
		s.MinFlushTime = flushTime
	}
	if flushTime > s.MaxFlushTime {
		s.MaxFlushTime = flushTime
	}
	if didReset {
		s.ResetCount++
	}
}

// Runner drives the speed test loop against one PHY.
type Runner struct {
	Ctrl  *usb.Controller
	Clock *clint.CLINT

	state direction
	stats TestStats

	payload [payloadSize]byte
}

// HandleControlByte dispatches a single opcode read from the control
// endpoint: 0x23 starts the IN test, 0x42 starts the OUT test, anything
// else stops whichever test is running and prints its statistics.
func (r *Runner) HandleControlByte(b byte) {
	switch b {
	case CommandStartIn:
		r.stats.Reset()
		r.state = in
	case CommandStartOut:
		r.stats.Reset()
		r.state = out
	default:
		r.stop()
	}
}

func (r *Runner) stop() {
	if r.state != stopped {
		log.Printf("speedtest: stopped, writes=%d resets=%d write=[%d,%d]ns flush=[%d,%d]ns",
			r.stats.WriteCount, r.stats.ResetCount,
			r.stats.MinWriteTime, r.stats.MaxWriteTime,
			r.stats.MinFlushTime, r.stats.MaxFlushTime)
	}

	r.state = stopped
}

// Active reports whether a test is currently running.
func (r *Runner) Active() bool {
	return r.state != stopped
}

// Step runs one iteration of whichever test is active. It is meant to be
// called repeatedly from the main loop; it returns immediately if no test
// is running.
func (r *Runner) Step() {
	switch r.state {
	case in:
		r.stepIn()
	case out:
		r.stepOut()
	}
}

// stepIn waits for the IN FIFO to go idle (bounded iterations, no sleep),
// resetting it first if it still held stale bytes, then writes one full
// payload and updates rolling statistics.
func (r *Runner) stepIn() {
	start := r.now()

	didReset := false
	if r.Ctrl.HaveIN() {
		r.Ctrl.ResetIN()
		didReset = true
	}

	for i := 0; i < idleWaitIterations && !r.Ctrl.IdleIN(); i++ {
	}

	flushed := r.now()

	r.Ctrl.Write(bulkInEndpoint, r.payload[:])

	written := r.now()

	r.stats.observe(written-flushed, flushed-start, didReset)
}

// stepOut reads one payload from the bulk OUT endpoint (distinct from the
// discard-by-default behaviour applied when no OUT test is running) and
// accumulates it into the same rolling statistics used by the IN path. The
// read time is recorded as the write time, the flush time is recorded as 0,
// and an empty read is counted in ResetCount.
func (r *Runner) stepOut() {
	start := r.now()

	n := r.Ctrl.Read(bulkOutEndpoint, r.payload[:])

	done := r.now()

	r.stats.observe(done-start, 0, n == 0)
}

// now returns a monotonic nanosecond timestamp from the shared
// Core-Local Interruptor, used only for relative interval measurement.
func (r *Runner) now() int64 {
	if r.Clock == nil {
		return 0
	}

	return r.Clock.Nanotime()
}

// Stats returns a snapshot of the current run's statistics.
func (r *Runner) Stats() TestStats {
	return r.stats
}
