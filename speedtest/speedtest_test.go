// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package speedtest

import "testing"

func TestTestStatsResetSeedsSentinels(t *testing.T) {
	var s TestStats
	s.Reset()

	s.observe(100, 10, false)

	if s.MinWriteTime != 100 || s.MaxWriteTime != 100 {
		t.Fatalf("write time = [%d,%d], want [100,100] for the first sample", s.MinWriteTime, s.MaxWriteTime)
	}
	if s.MinFlushTime != 10 || s.MaxFlushTime != 10 {
		t.Fatalf("flush time = [%d,%d], want [10,10] for the first sample", s.MinFlushTime, s.MaxFlushTime)
	}
}

func TestTestStatsRollingMinMax(t *testing.T) {
	var s TestStats
	s.Reset()

	s.observe(100, 5, false)
	s.observe(50, 20, false)
	s.observe(200, 1, false)

	if s.MinWriteTime != 50 {
		t.Fatalf("MinWriteTime = %d, want 50", s.MinWriteTime)
	}
	if s.MaxWriteTime != 200 {
		t.Fatalf("MaxWriteTime = %d, want 200", s.MaxWriteTime)
	}
	if s.MinFlushTime != 1 {
		t.Fatalf("MinFlushTime = %d, want 1", s.MinFlushTime)
	}
	if s.MaxFlushTime != 20 {
		t.Fatalf("MaxFlushTime = %d, want 20", s.MaxFlushTime)
	}
	if s.WriteCount != 3 {
		t.Fatalf("WriteCount = %d, want 3", s.WriteCount)
	}
}

func TestTestStatsResetCounter(t *testing.T) {
	var s TestStats
	s.Reset()

	s.observe(1, 1, false)
	s.observe(1, 1, true)
	s.observe(1, 1, true)

	if s.ResetCount != 2 {
		t.Fatalf("ResetCount = %d, want 2", s.ResetCount)
	}
	if s.WriteCount != 3 {
		t.Fatalf("WriteCount = %d, want 3", s.WriteCount)
	}
}

func TestRunnerActiveReflectsState(t *testing.T) {
	r := &Runner{}

	if r.Active() {
		t.Fatal("Active() should be false before any command byte")
	}

	r.HandleControlByte(CommandStartIn)
	if !r.Active() {
		t.Fatal("Active() should be true after CommandStartIn")
	}

	r.HandleControlByte(0x00)
	if r.Active() {
		t.Fatal("Active() should be false after a stop opcode")
	}
}

func TestRunnerStatsSnapshot(t *testing.T) {
	r := &Runner{}
	r.HandleControlByte(CommandStartOut)

	r.stats.observe(5, 5, false)

	snap := r.Stats()
	if snap.WriteCount != 1 {
		t.Fatalf("Stats().WriteCount = %d, want 1", snap.WriteCount)
	}
}
