// Trident SoC configuration and support
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package trident provides support to Go bare metal firmware written using
// the TamaGo framework for the Trident RISC-V soft-core SoC.
//
// The package implements initialization and peripheral wiring for the three
// on-chip USB device PHYs (Target, Aux, Control), their shared external
// interrupt router, a Core-Local Interruptor for timekeeping, and a serial
// port used as the logging byte sink, adopting the same peripheral-wiring
// conventions as the reference SiFive FU540 support this tree descends
// from.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64` as
// supported by the TamaGo framework for bare metal Go on RISC-V SoCs, see
// https://github.com/usbarmory/tamago.
package trident

import (
	_ "unsafe"

	"github.com/trident-fw/trident/riscv64"
	"github.com/trident-fw/trident/soc/sifive/clint"
	"github.com/trident-fw/trident/soc/sifive/uart"
	"github.com/trident-fw/trident/soc/trident/plic"
	"github.com/trident-fw/trident/usb"
)

// Peripheral registers
const (
	// Core-Local Interruptor
	CLINT_BASE = 0x2000000

	// Platform-Level Interrupt Controller
	PLIC_BASE = 0x0c000000

	// Serial port (logging sink)
	UART0_BASE = 0x10010000

	// USB PHY controller register blocks
	TARGET_PHY_BASE  = 0x40000000
	AUX_PHY_BASE     = 0x40001000
	CONTROL_PHY_BASE = 0x40002000

	// PLIC external interrupt source ids, one per PHY
	TARGET_PHY_IRQ  = 1
	AUX_PHY_IRQ     = 2
	CONTROL_PHY_IRQ = 3

	// RTCCLK is the always-on reference oscillator frequency driving the
	// CLINT cycle counter.
	RTCCLK = 1000000
)

// Peripheral instances
var (
	// RISC-V core
	RV64 = &riscv64.CPU{}

	// Core-Local Interruptor, used for speed-test timing statistics.
	CLINT = &clint.CLINT{
		Base:   CLINT_BASE,
		RTCCLK: RTCCLK,
	}

	// Platform-Level Interrupt Controller, routes the three PHY
	// interrupt lines to the machine-external-interrupt vector.
	PLIC = &plic.PLIC{
		Base: PLIC_BASE,
	}

	// Serial port, used exclusively as the logging byte sink.
	UART0 = &uart.UART{
		Index: 0,
		Base:  UART0_BASE,
	}

	// TargetPHY is the USB PHY facing the device under test.
	TargetPHY = &usb.Controller{
		Name: "target",
		Base: TARGET_PHY_BASE,
		IRQ:  TARGET_PHY_IRQ,
	}

	// AuxPHY is the USB PHY used for the bulk throughput speed test.
	AuxPHY = &usb.Controller{
		Name: "aux",
		Base: AUX_PHY_BASE,
		IRQ:  AUX_PHY_IRQ,
	}

	// ControlPHY is the USB PHY used for the GCP command channel.
	ControlPHY = &usb.Controller{
		Name: "control",
		Base: CONTROL_PHY_BASE,
		IRQ:  CONTROL_PHY_IRQ,
	}
)

// Model returns the SoC model name.
func Model() string {
	return "Trident"
}

// Init initializes the logging serial port and registers every PHY
// controller so that interrupt context code can recover a handle without
// threading one through the trap vector (the "summon" pattern).
func Init() {
	UART0.Init()

	usb.Register(TargetPHY)
	usb.Register(AuxPHY)
	usb.Register(ControlPHY)
}
