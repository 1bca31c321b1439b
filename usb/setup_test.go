// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "testing"

func TestDecodeSetupPacketGetDeviceDescriptor(t *testing.T) {
	// Scenario 1: GetDeviceDescriptor.
	pkt := DecodeSetupPacket([8]byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00})

	rt := pkt.RequestType()
	if rt.Direction != DeviceToHost {
		t.Fatalf("direction = %v, want DeviceToHost", rt.Direction)
	}
	if rt.Type != Standard {
		t.Fatalf("type = %v, want Standard", rt.Type)
	}

	req := pkt.Request()
	if !req.Standard || req.StandardCode != GetDescriptor {
		t.Fatalf("request = %+v, want GetDescriptor", req)
	}

	descType, descIndex := pkt.DescriptorRequest()
	if descType != DescriptorDevice || descIndex != 0 {
		t.Fatalf("descriptor request = (%d, %d), want (Device, 0)", descType, descIndex)
	}

	if pkt.Length() != 0x40 {
		t.Fatalf("length = %d, want 64", pkt.Length())
	}
}

func TestDecodeSetupPacketSetAddress(t *testing.T) {
	// Scenario 2: SetAddress 0x05.
	pkt := DecodeSetupPacket([8]byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00})

	rt := pkt.RequestType()
	if rt.Direction != HostToDevice {
		t.Fatalf("direction = %v, want HostToDevice", rt.Direction)
	}

	req := pkt.Request()
	if !req.Standard || req.StandardCode != SetAddress {
		t.Fatalf("request = %+v, want SetAddress", req)
	}

	if pkt.Value()&0x7f != 0x05 {
		t.Fatalf("address = %#x, want 0x05", pkt.Value())
	}
}

func TestRequestTypeNeverErrors(t *testing.T) {
	// Every bit pattern must decode, including reserved recipient and
	// type values; there is no failure path here.
	for b := 0; b < 256; b++ {
		pkt := DecodeSetupPacket([8]byte{byte(b), 0, 0, 0, 0, 0, 0, 0})
		_ = pkt.RequestType()
	}
}

func TestRequestStandardVsVendor(t *testing.T) {
	for code := 0; code <= SynchFrame; code++ {
		pkt := DecodeSetupPacket([8]byte{0, byte(code), 0, 0, 0, 0, 0, 0})
		if req := pkt.Request(); !req.Standard || req.StandardCode != code {
			t.Fatalf("code %d: got %+v, want Standard", code, req)
		}
	}

	pkt := DecodeSetupPacket([8]byte{0, 0x65, 0, 0, 0, 0, 0, 0})
	if req := pkt.Request(); req.Standard {
		t.Fatalf("0x65 decoded as standard, want ClassOrVendor")
	}
}
