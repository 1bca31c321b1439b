// Interrupt-to-main-loop event mailbox
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package mailbox implements a bounded, wait-free, lock-free multi-producer
// multi-consumer ring buffer of Events, bridging interrupt context (the
// producer) and the cooperative main loop (the consumer). Neither Enqueue
// nor Dequeue ever blocks or allocates.
package mailbox

import (
	"sync/atomic"

	"github.com/trident-fw/trident/usb"
)

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	BusReset EventKind = iota
	ReceiveSetupPacket
	ReceivePacket
	TransferComplete
	ErrorMessage
	UnknownInterrupt
)

// dataCapacity bounds the bytes an Event can carry inline: enough for a
// control-channel opcode or a short status read, not a full bulk payload.
// An OUT packet longer than this is truncated when the interrupt handler
// drains it into an Event; the controller counts the dropped bytes as
// overflow.
const dataCapacity = 64

// Event is a single classified interrupt occurrence, created by the ISR and
// consumed exactly once by the main loop.
type Event struct {
	Kind EventKind
	Phy  usb.Phy

	Setup       usb.SetupPacket
	Endpoint    uint8
	Data        [dataCapacity]byte
	BytesRead   int
	Message     string
	PendingBits uint32
}

// slot pairs an Event with a sequence number implementing Dmitry Vyukov's
// bounded MPMC queue algorithm: a slot is writable once its sequence equals
// its index, and readable once its sequence equals index+1.
type slot struct {
	sequence uint64
	event    Event
}

// Mailbox is a bounded MPMC ring buffer of Events. Capacity must be a power
// of two.
type Mailbox struct {
	mask    uint64
	slots   []slot
	enqPos  uint64
	deqPos  uint64
}

// ErrFull is returned by Enqueue when the mailbox has no free slot.
// Per the ISR classifier's policy this error is fatal when it occurs in
// interrupt context; it is a plain error here so that policy stays in the
// caller, not the data structure.
type ErrFull struct{}

func (ErrFull) Error() string { return "mailbox: full" }

// ErrEmpty is returned by Dequeue when the mailbox has no pending event.
type ErrEmpty struct{}

func (ErrEmpty) Error() string { return "mailbox: empty" }

// New creates a Mailbox with the given capacity, which must be a power of
// two (panics otherwise: this is a construction-time programming error,
// never a runtime condition).
func New(capacity int) *Mailbox {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("mailbox: capacity must be a power of two")
	}

	m := &Mailbox{
		mask:  uint64(capacity - 1),
		slots: make([]slot, capacity),
	}

	for i := range m.slots {
		m.slots[i].sequence = uint64(i)
	}

	return m
}

// Enqueue adds an event to the mailbox. It never blocks: on a full queue it
// returns ErrFull immediately.
func (m *Mailbox) Enqueue(e Event) error {
	for {
		pos := atomic.LoadUint64(&m.enqPos)
		s := &m.slots[pos&m.mask]
		seq := atomic.LoadUint64(&s.sequence)

		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&m.enqPos, pos, pos+1) {
				s.event = e
				atomic.StoreUint64(&s.sequence, pos+1)
				return nil
			}
		case diff < 0:
			return ErrFull{}
		default:
			// another producer won the slot; retry
		}
	}
}

// Dequeue removes the oldest pending event. It never blocks: on an empty
// queue it returns ErrEmpty immediately.
func (m *Mailbox) Dequeue() (Event, error) {
	for {
		pos := atomic.LoadUint64(&m.deqPos)
		s := &m.slots[pos&m.mask]
		seq := atomic.LoadUint64(&s.sequence)

		diff := int64(seq) - int64(pos+1)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&m.deqPos, pos, pos+1) {
				e := s.event
				atomic.StoreUint64(&s.sequence, pos+m.mask+1)
				return e, nil
			}
		case diff < 0:
			return Event{}, ErrEmpty{}
		default:
			// another consumer won the slot; retry
		}
	}
}

// Len returns the capacity of the mailbox.
func (m *Mailbox) Len() int {
	return len(m.slots)
}
