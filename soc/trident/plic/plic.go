// RISC-V Platform-Level Interrupt Controller (PLIC) driver
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package plic implements a driver for a standard RISC-V Platform-Level
// Interrupt Controller, adopting the register layout described in the
// RISC-V Privileged Architecture specification, chapter 7 (Platform-Level
// Interrupt Controller).
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64` as
// supported by the TamaGo framework for bare metal Go on RISC-V SoCs, see
// https://github.com/usbarmory/tamago.
package plic

import (
	"github.com/trident-fw/trident/internal/reg"
)

// PLIC register offsets, hart 0 machine-mode context.
const (
	priorityBase = 0x000000 // source priority, 4 bytes per source id
	pendingBase  = 0x001000 // pending bitmap
	enableBase   = 0x002000 // hart 0 M-mode enable bitmap
	thresholdReg = 0x200000 // hart 0 M-mode priority threshold
	claimReg     = 0x200004 // hart 0 M-mode claim/complete
)

// PLIC represents a Platform-Level Interrupt Controller instance.
type PLIC struct {
	// Base register
	Base uint32
}

// Enable raises a source's priority above zero and sets its enable bit for
// the machine-mode context, making it eligible to interrupt the hart.
func (hw *PLIC) Enable(source int) {
	reg.Write(hw.Base+priorityBase+uint32(source)*4, 1)

	word := source / 32
	bit := source % 32
	reg.Set(hw.Base+enableBase+uint32(word)*4, bit)
}

// Disable clears a source's enable bit for the machine-mode context.
func (hw *PLIC) Disable(source int) {
	word := source / 32
	bit := source % 32
	reg.Clear(hw.Base+enableBase+uint32(word)*4, bit)
}

// SetThreshold sets the minimum priority a source must have to interrupt the
// hart; sources with priority <= threshold never fire.
func (hw *PLIC) SetThreshold(threshold uint32) {
	reg.Write(hw.Base+thresholdReg, threshold)
}

// Claim returns the id of the highest-priority pending interrupt source, or
// zero if none is pending. The claimed source remains un-claimable by other
// harts until Complete is called with the same id.
func (hw *PLIC) Claim() int {
	return int(reg.Read(hw.Base + claimReg))
}

// Complete signals that the firmware has finished servicing the given
// source, re-arming it for future claims. Must be called exactly once per
// successful Claim, from the same context.
func (hw *PLIC) Complete(source int) {
	reg.Write(hw.Base+claimReg, uint32(source))
}

// Pending reports whether a source currently has an interrupt pending,
// without claiming it.
func (hw *PLIC) Pending(source int) bool {
	word := source / 32
	bit := source % 32

	return reg.Get(hw.Base+pendingBase+uint32(word)*4, bit, 1) == 1
}
