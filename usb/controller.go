// USB device controller driver
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package usb implements the device-side USB 2.0 control transfer state
// machine, endpoint FIFO primitives, and descriptor model for a soft-core
// USB device controller exposing up to three independent PHYs.
//
// This package is only meant to be used with `GOOS=tamago GOARCH=riscv64` as
// supported by the TamaGo framework for bare metal Go on RISC-V SoCs, see
// https://github.com/usbarmory/tamago.
package usb

import (
	"log"
	"sync"

	"github.com/trident-fw/trident/internal/reg"
)

// Speed codes reported by Connect, matching the link speed encoding of the
// controller's status register.
const (
	SpeedHigh       = 0
	SpeedFull       = 1
	SpeedLow        = 2
	SpeedSuper      = 3 // decoded but unreachable: USB3.x is out of scope
)

// Endpoint register block offsets, relative to a Controller's Base. Each
// endpoint block (control, IN, OUT) exposes a data register plus its own
// subset of the have/idle/reset/prime/enable/stall/epno/address
// side-channels.
const (
	epControlData    = 0x0000
	epControlHave    = 0x0004
	epControlEPNO    = 0x0008
	epControlAddress = 0x000c
	epControlStall   = 0x0010

	epInData  = 0x0100
	epInHave  = 0x0104
	epInIdle  = 0x0108
	epInReset = 0x010c
	epInEPNO  = 0x0110
	epInStall = 0x0114

	epOutData    = 0x0200
	epOutHave    = 0x0204
	epOutReset   = 0x0208
	epOutPrime   = 0x020c
	epOutEnable  = 0x0210
	epOutEPNO    = 0x0214
	epOutAddress = 0x0218
	epOutStall   = 0x021c

	connectReg  = 0x0300
	speedReg    = 0x0304
	resetReg    = 0x0308
	pendingReg  = 0x030c
	enableIRQReg = 0x0310
)

// Interrupt pending bits, as read from the controller's pending register and
// classified in fixed priority order by the interrupt handler.
const (
	PendingEPOut    = 0
	PendingBusReset = 1
	PendingEPControl = 2
	PendingEPIn     = 3
)

// outEndpoints is the small fixed set of OUT endpoints re-primed, in
// descending order, after every Read: a workaround for a hardware quirk
// where priming one endpoint can disarm its neighbours. See
// Controller.DisableRepeatPrimeQuirk.
var outEndpoints = []int{2, 1, 0}

// Controller is a typed MMIO handle for one USB device PHY: named accessors
// built over the atomic primitives in internal/reg, never a register-bit
// encyclopedia.
type Controller struct {
	sync.Mutex

	// Name identifies the PHY for logging (target, aux, control).
	Name string
	// Base is the controller's MMIO base address.
	Base uint32
	// IRQ is the PLIC external interrupt source id wired to this PHY.
	IRQ int

	// DisableRepeatPrimeQuirk opts out of the "re-prime every OUT
	// endpoint in descending order" workaround described in the
	// hardware errata. The workaround is active by default (zero
	// value); set this on silicon revisions confirmed to fix the quirk.
	DisableRepeatPrimeQuirk bool

	// Overflow counts FIFO reads that dropped bytes because the
	// caller's buffer was shorter than the pending data.
	Overflow uint64

	txAckActive [3]bool
}

// controllers is the package-level registry of initialized PHYs: interrupt
// context recovers a handle by IRQ id rather than by being handed one
// explicitly through the trap vector.
var (
	registryMu  sync.Mutex
	controllers = map[int]*Controller{}
)

// Register makes a Controller recoverable by Summon from interrupt context.
// Called once at init for every enabled PHY.
func Register(c *Controller) {
	registryMu.Lock()
	controllers[c.IRQ] = c
	registryMu.Unlock()
}

// Summon recovers a previously Registered Controller by its PLIC source id.
// Safe to call from interrupt context: it only reads a map populated once
// at startup.
func Summon(irq int) *Controller {
	registryMu.Lock()
	c := controllers[irq]
	registryMu.Unlock()

	return c
}

// Connect de-asserts the controller connect line, disables interrupts,
// flushes the OUT and IN FIFOs, re-asserts connect, and returns the
// negotiated link speed. The control FIFO has no reset register and is not
// flushed.
func (hw *Controller) Connect() int {
	reg.Clear(hw.Base+connectReg, 0)
	reg.Write(hw.Base+enableIRQReg, 0)

	reg.Write(hw.Base+epOutReset, 1)
	reg.Write(hw.Base+epInReset, 1)

	reg.Set(hw.Base+connectReg, 0)

	speed := int(reg.Get(hw.Base+speedReg, 0, 0x3))

	log.Printf("usb: %s connected at speed %d", hw.Name, speed)

	return speed
}

// BusReset sets the device address register to zero, re-flushes FIFOs, and
// re-enables interrupts.
func (hw *Controller) BusReset() {
	reg.Write(hw.Base+epControlAddress, 0)
	reg.Write(hw.Base+epOutAddress, 0)

	reg.Write(hw.Base+epOutReset, 1)
	reg.Write(hw.Base+epInReset, 1)

	reg.Set(hw.Base+enableIRQReg, PendingEPOut)
	reg.Set(hw.Base+enableIRQReg, PendingBusReset)
	reg.Set(hw.Base+enableIRQReg, PendingEPControl)
	reg.Set(hw.Base+enableIRQReg, PendingEPIn)

	hw.txAckActive = [3]bool{}
}

// SetAddress writes addr&0x7F into both the control and OUT address
// registers. Must only be called after the status stage of the
// corresponding SetAddress transaction has been acknowledged.
func (hw *Controller) SetAddress(addr uint8) {
	a := addr & 0x7f

	reg.Write(hw.Base+epControlAddress, uint32(a))
	reg.Write(hw.Base+epOutAddress, uint32(a))
}

// AckStatusStage completes the status stage of a control transfer: if the
// data stage direction was DeviceToHost, the host will send a zero-length
// OUT packet and EP0-OUT must be primed to receive it; otherwise the device
// must send a zero-length IN packet.
func (hw *Controller) AckStatusStage(pkt *SetupPacket) {
	if pkt.RequestType().Direction == DeviceToHost {
		reg.Set(hw.Base+epOutPrime, 0)
		reg.Set(hw.Base+epOutEnable, 0)
	} else {
		reg.Write(hw.Base+epControlEPNO, 0)
	}
}

// StallRequest stalls both EP0-IN and EP0-OUT simultaneously, the response
// to an unsupported or invalid setup request.
func (hw *Controller) StallRequest() {
	reg.Set(hw.Base+epInStall, 0)
	reg.Set(hw.Base+epOutStall, 0)
}

// StallEndpoint stalls or unstalls a single endpoint. The direction is
// encoded in the top bit of address, per the USB endpoint address
// convention (0x80 = IN).
func (hw *Controller) StallEndpoint(address uint8, stalled bool) {
	ep := uint32(address & 0x0f)
	in := address&0x80 != 0

	var stallReg uint32
	if in {
		stallReg = hw.Base + epInStall
	} else {
		stallReg = hw.Base + epOutStall
	}

	if stalled {
		reg.SetN(stallReg, 0, 0xf, ep)
	} else {
		reg.ClearN(stallReg, 0, 0xf)
	}
}

// ReadControl drains the control FIFO into buf, discarding bytes beyond
// len(buf), and returns the number of bytes stored.
func (hw *Controller) ReadControl(buf []byte) int {
	return hw.drain(hw.Base+epControlData, hw.Base+epControlHave, buf)
}

// ActiveOutEndpoint returns the endpoint number that delivered the data
// currently sitting in the shared OUT FIFO, read from the same side-channel
// register used to select which endpoint to re-prime. It must be read
// before the FIFO is drained: draining re-arms priming and the value is no
// longer meaningful afterwards.
func (hw *Controller) ActiveOutEndpoint() uint8 {
	return uint8(reg.Get(hw.Base+epOutEPNO, 0, 0xf))
}

// Read drains the given OUT endpoint's FIFO into buf. After draining, unless
// DisableRepeatPrimeQuirk is set, every OUT endpoint in outEndpoints is
// re-primed in descending order as a workaround for a hardware quirk where
// priming one endpoint can disarm its neighbours; otherwise only endpoint
// is re-primed.
func (hw *Controller) Read(endpoint uint8, buf []byte) int {
	n := hw.drain(hw.Base+epOutData, hw.Base+epOutHave, buf)

	if !hw.DisableRepeatPrimeQuirk {
		for _, ep := range outEndpoints {
			reg.SetN(hw.Base+epOutEPNO, 0, 0xf, uint32(ep))
			reg.Set(hw.Base+epOutPrime, 0)
			reg.Set(hw.Base+epOutEnable, 0)
		}
	} else {
		reg.SetN(hw.Base+epOutEPNO, 0, 0xf, uint32(endpoint&0xf))
		reg.Set(hw.Base+epOutPrime, 0)
		reg.Set(hw.Base+epOutEnable, 0)
	}

	return n
}

// drain reads bytes from a FIFO data register while the corresponding have
// bit is set, discarding anything beyond len(buf) and counting it as
// overflow.
func (hw *Controller) drain(dataReg, haveReg uint32, buf []byte) int {
	n := 0

	for reg.Get(haveReg, 0, 1) == 1 {
		b := byte(reg.Read(dataReg))

		if n < len(buf) {
			buf[n] = b
			n++
		} else {
			hw.Overflow++
		}
	}

	return n
}

// Write streams data into the given endpoint's IN FIFO and triggers
// transmission. If the FIFO still has bytes from a previous transfer
// (have), it is reset first.
func (hw *Controller) Write(endpoint uint8, data []byte) {
	hw.WriteRef(endpoint, data)
}

// WriteRef is functionally identical to Write; both names are kept to match
// the two call conventions (owned slice vs. shared buffer) used by callers
// in the GCP dispatcher and the bulk speed-test path.
func (hw *Controller) WriteRef(endpoint uint8, data []byte) {
	hw.Lock()
	defer hw.Unlock()

	if reg.Get(hw.Base+epInHave, 0, 1) == 1 {
		reg.Write(hw.Base+epInReset, 1)
	}

	for _, b := range data {
		reg.Write(hw.Base+epInData, uint32(b))
	}

	ep := endpoint & 0xf
	reg.SetN(hw.Base+epInEPNO, 0, 0xf, uint32(ep))

	if int(ep) < len(hw.txAckActive) {
		hw.txAckActive[ep] = true
	}
}

// IdleIN reports whether the IN FIFO has fully drained to the host (the
// idle bit), used by the bulk throughput path's busy-wait.
func (hw *Controller) IdleIN() bool {
	return reg.Get(hw.Base+epInIdle, 0, 1) == 1
}

// HaveIN reports whether the IN FIFO still holds undrained bytes.
func (hw *Controller) HaveIN() bool {
	return reg.Get(hw.Base+epInHave, 0, 1) == 1
}

// ResetIN flushes the IN FIFO.
func (hw *Controller) ResetIN() {
	reg.Write(hw.Base+epInReset, 1)
}

// ClearTxAckActive clears the software flag tracking whether a transmitted
// IN transfer on endpoint is still awaiting hardware acknowledgement.
func (hw *Controller) ClearTxAckActive(endpoint uint8) {
	ep := endpoint & 0xf

	if int(ep) < len(hw.txAckActive) {
		hw.txAckActive[ep] = false
	}
}

// IsTxAckActive reports whether endpoint has a transmitted IN transfer
// still awaiting hardware acknowledgement.
func (hw *Controller) IsTxAckActive(endpoint uint8) bool {
	ep := endpoint & 0xf

	if int(ep) < len(hw.txAckActive) {
		return hw.txAckActive[ep]
	}

	return false
}

// PendingIRQ returns the raw pending-interrupt bitmap for this controller.
func (hw *Controller) PendingIRQ() uint32 {
	return reg.Read(hw.Base + pendingReg)
}

// ClearIRQ clears a single pending-interrupt bit after its event data has
// been consumed.
func (hw *Controller) ClearIRQ(bit int) {
	reg.Clear(hw.Base+pendingReg, bit)
}
