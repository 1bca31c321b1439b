// Interrupt service routine classifier
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package isr implements the machine-external-interrupt classifier: it
// reads a PHY's pending interrupt bits in a fixed priority order, consumes
// whatever data that source requires (draining a FIFO, reading a setup
// packet), and enqueues the corresponding Event. It never blocks, never
// allocates beyond what mailbox.Event already carries by value, and must
// run with interrupts masked.
package isr

import (
	"log"

	"github.com/trident-fw/trident/mailbox"
	"github.com/trident-fw/trident/soc/trident/plic"
	"github.com/trident-fw/trident/usb"
)

// Classify reads one PHY's pending-interrupt bitmap in the fixed priority
// order (EP_OUT, bus reset, EP_CONTROL, EP_IN) and enqueues exactly one
// Event per call, or UnknownInterrupt if no known bit is set. Enqueue
// failure is fatal by policy: the caller (Handle) halts rather than drop
// an event silently.
func Classify(phy usb.Phy, ctrl *usb.Controller, mb *mailbox.Mailbox) error {
	pending := ctrl.PendingIRQ()

	switch {
	case pending&(1<<usb.PendingEPOut) != 0:
		ep := ctrl.ActiveOutEndpoint()

		event := mailbox.Event{Kind: mailbox.ReceivePacket, Phy: phy, Endpoint: ep}
		event.BytesRead = ctrl.Read(ep, event.Data[:])
		ctrl.ClearIRQ(usb.PendingEPOut)

		return mb.Enqueue(event)

	case pending&(1<<usb.PendingBusReset) != 0:
		ctrl.BusReset()
		ctrl.ClearIRQ(usb.PendingBusReset)

		return mb.Enqueue(mailbox.Event{
			Kind: mailbox.BusReset,
			Phy:  phy,
		})

	case pending&(1<<usb.PendingEPControl) != 0:
		var raw [8]byte
		n := ctrl.ReadControl(raw[:])
		ctrl.ClearIRQ(usb.PendingEPControl)

		if n < 8 {
			// Short reads on the control FIFO degrade to an error
			// event rather than a misparsed setup packet.
			return mb.Enqueue(mailbox.Event{
				Kind:    mailbox.ErrorMessage,
				Phy:     phy,
				Message: "short control read",
			})
		}

		return mb.Enqueue(mailbox.Event{
			Kind:  mailbox.ReceiveSetupPacket,
			Phy:   phy,
			Setup: usb.DecodeSetupPacket(raw),
		})

	case pending&(1<<usb.PendingEPIn) != 0:
		ctrl.ClearTxAckActive(0)
		ctrl.ClearIRQ(usb.PendingEPIn)

		return mb.Enqueue(mailbox.Event{
			Kind:     mailbox.TransferComplete,
			Phy:      phy,
			Endpoint: 0,
		})

	default:
		return mb.Enqueue(mailbox.Event{
			Kind:        mailbox.UnknownInterrupt,
			Phy:         phy,
			PendingBits: pending,
		})
	}
}

// Handle is the machine-external-interrupt entry point: it claims the
// pending source from the PLIC, recovers the matching Controller via
// usb.Summon, classifies it, and completes the claim. Mailbox overflow is
// fatal: this firmware never silently drops an event.
func Handle(router *plic.PLIC, phyOf func(irq int) usb.Phy, mb *mailbox.Mailbox) {
	source := router.Claim()
	if source == 0 {
		return
	}

	ctrl := usb.Summon(source)
	if ctrl == nil {
		log.Printf("isr: claimed unknown source %d", source)
		router.Complete(source)
		return
	}

	if err := Classify(phyOf(source), ctrl, mb); err != nil {
		log.Printf("isr: mailbox full, halting: %v", err)
		halt()
	}

	router.Complete(source)
}

// halt spins in an infinite loop, the fatal response to a mailbox that could
// not accept an event. It does not put the hart into a low-power state.
func halt() {
	for {
	}
}
