// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"bytes"
	"strings"
	"testing"
)

func TestDeviceDescriptorBytesScenario1(t *testing.T) {
	d := &DeviceDescriptor{}
	d.SetDefaults()

	want := []byte{
		0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
		0x50, 0x1d, 0xe6, 0x60, 0x40, 0x00, 0x01, 0x02,
		0x03, 0x01,
	}

	got := d.Bytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = % x, want % x", got, want)
	}
}

func TestEndpointDescriptorNumberAndDirection(t *testing.T) {
	in := &EndpointDescriptor{EndpointAddress: 0x81}
	if in.Number() != 1 {
		t.Fatalf("Number() = %d, want 1", in.Number())
	}
	if !in.IsIN() {
		t.Fatal("IsIN() = false, want true for 0x81")
	}

	out := &EndpointDescriptor{EndpointAddress: 0x02}
	if out.Number() != 2 {
		t.Fatalf("Number() = %d, want 2", out.Number())
	}
	if out.IsIN() {
		t.Fatal("IsIN() = true, want false for 0x02")
	}
}

func TestConfigurationDescriptorTotalLengthInvariant(t *testing.T) {
	ep := &EndpointDescriptor{EndpointAddress: 0x81, Attributes: TransferBulk, MaxPacketSize: 512}
	ep.SetDefaults()

	iface := &InterfaceDescriptor{}
	iface.SetDefaults()
	iface.Endpoints = []*EndpointDescriptor{ep}

	cfg := &ConfigurationDescriptor{}
	cfg.SetDefaults()
	cfg.Interfaces = []*InterfaceDescriptor{iface}

	b := cfg.Bytes()

	wantLen := configurationLength + interfaceLength + endpointLength
	if len(b) != wantLen {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), wantLen)
	}

	if int(cfg.TotalLength) != wantLen {
		t.Fatalf("TotalLength = %d, want %d", cfg.TotalLength, wantLen)
	}

	if cfg.NumInterfaces != 1 {
		t.Fatalf("NumInterfaces = %d, want 1", cfg.NumInterfaces)
	}

	if iface.NumEndpoints != 1 {
		t.Fatalf("NumEndpoints = %d, want 1", iface.NumEndpoints)
	}
}

func TestStringDescriptorRoundTrip(t *testing.T) {
	sd, err := NewStringDescriptor("Trident")
	if err != nil {
		t.Fatalf("NewStringDescriptor: %v", err)
	}

	b := sd.Bytes()

	wantLen := 2 + 2*len("Trident")
	if int(b[0]) != wantLen {
		t.Fatalf("length byte = %d, want %d", b[0], wantLen)
	}
	if b[1] != DescriptorString {
		t.Fatalf("descriptor type = %#x, want %#x", b[1], DescriptorString)
	}

	for i, r := range "Trident" {
		lo := b[2+2*i]
		hi := b[2+2*i+1]
		if hi != 0 || rune(lo) != r {
			t.Fatalf("code unit %d = %#x %#x, want ASCII %q", i, lo, hi, r)
		}
	}
}

func TestStringDescriptorBoundary126CodeUnits(t *testing.T) {
	s := strings.Repeat("a", maxStringCodeUnits)

	sd, err := NewStringDescriptor(s)
	if err != nil {
		t.Fatalf("NewStringDescriptor(126 units): %v", err)
	}

	b := sd.Bytes()
	if len(b) != 2+2*maxStringCodeUnits {
		t.Fatalf("len(Bytes()) = %d, want %d", len(b), 2+2*maxStringCodeUnits)
	}

	if _, err := NewStringDescriptor(strings.Repeat("a", maxStringCodeUnits+1)); err == nil {
		t.Fatal("NewStringDescriptor(127 units): want error, got nil")
	}
}

func TestClamp(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}

	if got := clamp(buf, 8); len(got) != 5 {
		t.Fatalf("clamp(buf, 8) = %d bytes, want 5 (no truncation past len)", len(got))
	}

	if got := clamp(buf, 3); len(got) != 3 {
		t.Fatalf("clamp(buf, 3) = %d bytes, want 3", len(got))
	}
}

func TestDeviceConfigurationClampsToRequestedLength(t *testing.T) {
	ep := &EndpointDescriptor{EndpointAddress: 0x81, Attributes: TransferBulk, MaxPacketSize: 512}
	ep.SetDefaults()

	iface := &InterfaceDescriptor{}
	iface.SetDefaults()
	iface.Endpoints = []*EndpointDescriptor{ep}

	cfg := &ConfigurationDescriptor{}
	cfg.SetDefaults()
	cfg.Interfaces = []*InterfaceDescriptor{iface}

	dev := &Device{Config: cfg}

	full := dev.Configuration(0xffff)
	if len(full) != configurationLength+interfaceLength+endpointLength {
		t.Fatalf("Configuration(0xffff) len = %d, want full descriptor", len(full))
	}

	header := dev.Configuration(configurationLength)
	if len(header) != configurationLength {
		t.Fatalf("Configuration(9) len = %d, want 9 (header only)", len(header))
	}
}

func TestDeviceStringIndexZeroIsInvalid(t *testing.T) {
	dev := &Device{Strings: []*StringDescriptor{}}

	if _, err := dev.String(0); err == nil {
		t.Fatal("String(0) should be rejected: index 0 is the language table")
	}
}
