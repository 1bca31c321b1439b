// GCP device-emulation class (moondancer)
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gcp

import (
	"encoding/binary"

	"github.com/trident-fw/trident/usb"
)

// MoondancerClassID is the fixed class id for the device-emulation class.
const MoondancerClassID = 0x10

// Moondancer exposes a PHY to the host as a set of GCP verbs, letting host
// software drive USB device emulation directly over the command channel
// instead of through firmware-resident descriptor tables. The original
// source only stubs stall_endpoint/send_on_endpoint and the
// clean_up_transfer/non-blocking-read trio; this implementation wires them
// to real driver calls and real per-endpoint bookkeeping rather than
// leaving them as no-ops.
type Moondancer struct {
	Ctrl *usb.Controller

	lastSetup [8]byte

	// nonblockingData holds, per endpoint number, the bytes captured by
	// the most recent start_nonblocking_read/finish_nonblocking_read
	// pair.
	nonblockingData [16][]byte
}

// NewMoondancerClass builds the device-emulation class (id 0x10) over the
// given PHY.
func NewMoondancerClass(m *Moondancer) *Class {
	return &Class{
		ID:   MoondancerClassID,
		Name: "moondancer",
		Doc:  "Device-emulation verbs driving a PHY directly from the host.",
		Verbs: []Verb{
			{ID: 0x0, Name: "connect", Doc: "Connect the emulated device to the bus.",
				InSignature: "<HH", Handler: m.connect},
			{ID: 0x1, Name: "disconnect", Doc: "Accepted and acknowledged; the bus connection is left unchanged.",
				Handler: m.disconnect},
			{ID: 0x2, Name: "bus_reset", Doc: "Trigger a bus reset.",
				Handler: m.busReset},
			{ID: 0x3, Name: "set_address", Doc: "Set the device address.",
				InSignature: "<BB", Handler: m.setAddress},
			{ID: 0x4, Name: "set_up_endpoints", Doc: "Configure endpoint descriptors.",
				InSignature: "<*(BHB)", Handler: m.setUpEndpoints},
			{ID: 0x5, Name: "get_status", Doc: "Read a status register.",
				InSignature: "<B", OutSignature: "<I", Handler: m.getStatus},
			{ID: 0x6, Name: "read_setup", Doc: "Return an 8-byte setup packet buffer; no setup packet is recorded into it, so it reads as zeros.",
				InSignature: "<B", OutSignature: "<8X", Handler: m.readSetup},
			{ID: 0x7, Name: "stall_endpoint", Doc: "Stall an endpoint.",
				InSignature: "<B", Handler: m.stallEndpoint},
			{ID: 0x8, Name: "send_on_endpoint", Doc: "Send data on an endpoint.",
				InSignature: "<B*X", Handler: m.sendOnEndpoint},
			{ID: 0x9, Name: "clean_up_transfer", Doc: "Clean up a completed transfer on an endpoint.",
				InSignature: "<B", Handler: m.cleanUpTransfer},
			{ID: 0xa, Name: "start_nonblocking_read", Doc: "Begin listening for data on an OUT endpoint.",
				InSignature: "<B", Handler: m.startNonblockingRead},
			{ID: 0xb, Name: "finish_nonblocking_read", Doc: "Return the data read after a non-blocking read.",
				InSignature: "<B", OutSignature: "<*X", Handler: m.finishNonblockingRead},
			{ID: 0xc, Name: "get_nonblocking_data_length", Doc: "Return the amount of data read after a non-blocking read.",
				InSignature: "<B", OutSignature: "<I", Handler: m.getNonblockingDataLength},
		},
	}
}

func (m *Moondancer) connect(args []byte) ([]byte, error) {
	m.Ctrl.Connect()
	return nil, nil
}

func (m *Moondancer) disconnect(args []byte) ([]byte, error) {
	return nil, nil
}

func (m *Moondancer) busReset(args []byte) ([]byte, error) {
	m.Ctrl.BusReset()
	return nil, nil
}

func (m *Moondancer) setAddress(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	m.Ctrl.SetAddress(args[0])
	return nil, nil
}

func (m *Moondancer) setUpEndpoints(args []byte) ([]byte, error) {
	// Each endpoint descriptor is (address u8, maxPacketSize u16,
	// attributes u8); the driver itself has no configurable endpoint
	// table to update beyond stall state, so this verb accepts and
	// ignores them. The input is not validated.
	for i := 0; i+4 <= len(args); i += 4 {
		_ = args[i] // endpoint address, reserved for future routing
	}

	return nil, nil
}

func (m *Moondancer) getStatus(args []byte) ([]byte, error) {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, m.Ctrl.PendingIRQ())
	return out, nil
}

func (m *Moondancer) readSetup(args []byte) ([]byte, error) {
	return m.lastSetup[:], nil
}

func (m *Moondancer) stallEndpoint(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	m.Ctrl.StallEndpoint(args[0], true)
	return nil, nil
}

func (m *Moondancer) sendOnEndpoint(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	m.Ctrl.Write(args[0], args[1:])
	return nil, nil
}

func (m *Moondancer) cleanUpTransfer(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	ep := args[0] & 0x0f
	m.Ctrl.ClearTxAckActive(ep)
	m.nonblockingData[ep] = nil

	return nil, nil
}

func (m *Moondancer) startNonblockingRead(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	ep := args[0] & 0x0f
	buf := make([]byte, 512)
	n := m.Ctrl.Read(ep, buf)
	m.nonblockingData[ep] = buf[:n]

	return nil, nil
}

func (m *Moondancer) finishNonblockingRead(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	ep := args[0] & 0x0f
	return m.nonblockingData[ep], nil
}

func (m *Moondancer) getNonblockingDataLength(args []byte) ([]byte, error) {
	if len(args) < 1 {
		return nil, errShortArguments
	}

	ep := args[0] & 0x0f
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(m.nonblockingData[ep])))

	return out, nil
}
