// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mailbox

import (
	"testing"

	"github.com/trident-fw/trident/usb"
)

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("New(3) should panic: capacity must be a power of two")
		}
	}()

	New(3)
}

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	m := New(4)

	for i := 0; i < 4; i++ {
		if err := m.Enqueue(Event{Kind: BusReset, Endpoint: uint8(i)}); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}

	for i := 0; i < 4; i++ {
		e, err := m.Dequeue()
		if err != nil {
			t.Fatalf("Dequeue(%d): %v", i, err)
		}
		if e.Endpoint != uint8(i) {
			t.Fatalf("Dequeue(%d).Endpoint = %d, want %d (FIFO order)", i, e.Endpoint, i)
		}
	}
}

func TestEnqueueReturnsErrFullAtCapacity(t *testing.T) {
	m := New(2)

	if err := m.Enqueue(Event{}); err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	if err := m.Enqueue(Event{}); err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}

	if err := m.Enqueue(Event{}); err == nil {
		t.Fatal("Enqueue at capacity should return ErrFull")
	} else if _, ok := err.(ErrFull); !ok {
		t.Fatalf("Enqueue at capacity returned %T, want ErrFull", err)
	}
}

func TestDequeueReturnsErrEmpty(t *testing.T) {
	m := New(4)

	if _, err := m.Dequeue(); err == nil {
		t.Fatal("Dequeue on empty mailbox should return ErrEmpty")
	} else if _, ok := err.(ErrEmpty); !ok {
		t.Fatalf("Dequeue on empty mailbox returned %T, want ErrEmpty", err)
	}
}

func TestMailboxAcceptsAfterDequeueMakesRoom(t *testing.T) {
	m := New(2)

	m.Enqueue(Event{Kind: BusReset})
	m.Enqueue(Event{Kind: ReceivePacket})

	if err := m.Enqueue(Event{Kind: TransferComplete}); err == nil {
		t.Fatal("Enqueue at capacity should be refused")
	}

	if _, err := m.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if err := m.Enqueue(Event{Kind: TransferComplete}); err != nil {
		t.Fatalf("Enqueue after freeing a slot: %v", err)
	}
}

func TestEventCarriesSetupPacketAndPhy(t *testing.T) {
	m := New(4)

	pkt := usb.DecodeSetupPacket([8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00})

	m.Enqueue(Event{Kind: ReceiveSetupPacket, Phy: usb.Control, Setup: pkt})

	e, err := m.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if e.Phy != usb.Control {
		t.Fatalf("Phy = %v, want Control", e.Phy)
	}
	if e.Setup.Length() != 0x40 {
		t.Fatalf("Setup.Length() = %d, want 64", e.Setup.Length())
	}
}

func TestEventCarriesDrainedBytes(t *testing.T) {
	m := New(4)

	var e Event
	e.Kind = ReceivePacket
	e.Endpoint = 2
	e.Data[0] = 0x23
	e.BytesRead = 1

	m.Enqueue(e)

	got, err := m.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	if got.Endpoint != 2 || got.BytesRead != 1 || got.Data[0] != 0x23 {
		t.Fatalf("Dequeue() = %+v, want Endpoint=2 BytesRead=1 Data[0]=0x23", got)
	}
}

func TestLenReportsCapacity(t *testing.T) {
	m := New(32)
	if m.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", m.Len())
	}
}
