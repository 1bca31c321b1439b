// USB setup packet decoding
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "encoding/binary"

// Direction is the data-stage direction bit of a setup packet.
type Direction int

const (
	HostToDevice Direction = 0
	DeviceToHost Direction = 1
)

// RequestKind is the request-type bitfield's type subfield.
type RequestKind int

const (
	Standard RequestKind = 0
	Class    RequestKind = 1
	Vendor   RequestKind = 2
	// ReservedRequestKind is the fourth, reserved bit pattern; it is
	// decoded, never rejected, matching the decoder's "accept any bit
	// pattern" contract.
	ReservedRequestKind RequestKind = 3
)

// Recipient is the request-type bitfield's recipient subfield.
type Recipient int

const (
	RecipientDevice    Recipient = 0
	RecipientInterface Recipient = 1
	RecipientEndpoint  Recipient = 2
	RecipientOther     Recipient = 3
	// Recipients 4-31 are reserved; they decode to their raw value.
)

// RequestType is the decoded bmRequestType byte.
type RequestType struct {
	Recipient Recipient
	Type      RequestKind
	Direction Direction
}

// Standard request codes (Table 9-4, USB 2.0 specification).
const (
	GetStatus        = 0
	ClearFeature     = 1
	SetFeature       = 3
	SetAddress       = 5
	GetDescriptor    = 6
	SetDescriptor    = 7
	GetConfiguration = 8
	SetConfiguration = 9
	GetInterface     = 10
	SetInterface     = 11
	SynchFrame       = 12
)

// Request is the decoded bRequest byte: either a standard request code
// (0 through 12), or an opaque class/vendor-defined value.
type Request struct {
	Standard     bool
	StandardCode int
	Raw          uint8
}

// Descriptor type codes (Table 9-5, USB 2.0 specification, plus the
// USB 2.0 high-speed additions).
const (
	DescriptorDevice                   = 1
	DescriptorConfiguration            = 2
	DescriptorString                   = 3
	DescriptorInterface                = 4
	DescriptorEndpoint                 = 5
	DescriptorDeviceQualifier          = 6
	DescriptorOtherSpeedConfiguration  = 7
)

// SetupPacket is the decoded 8-byte setup stage of a control transfer.
// Immutable once parsed.
type SetupPacket struct {
	bmRequestType uint8
	bRequest      uint8
	wValue        uint16
	wIndex        uint16
	wLength       uint16
}

// DecodeSetupPacket parses an 8-byte setup buffer. It never errors: every
// bit pattern, including reserved recipient/type values and non-standard
// request codes, decodes to a tagged value.
func DecodeSetupPacket(buf [8]byte) SetupPacket {
	return SetupPacket{
		bmRequestType: buf[0],
		bRequest:      buf[1],
		wValue:        binary.LittleEndian.Uint16(buf[2:4]),
		wIndex:        binary.LittleEndian.Uint16(buf[4:6]),
		wLength:       binary.LittleEndian.Uint16(buf[6:8]),
	}
}

// RequestType decodes the bmRequestType bitfield into its three subfields.
func (p SetupPacket) RequestType() RequestType {
	return RequestType{
		Recipient: Recipient(p.bmRequestType & 0x1f),
		Type:      RequestKind((p.bmRequestType >> 5) & 0x3),
		Direction: Direction((p.bmRequestType >> 7) & 0x1),
	}
}

// Request decodes the bRequest byte.
func (p SetupPacket) Request() Request {
	if p.bRequest <= SynchFrame {
		return Request{Standard: true, StandardCode: int(p.bRequest), Raw: p.bRequest}
	}

	return Request{Raw: p.bRequest}
}

// Value returns the raw wValue field.
func (p SetupPacket) Value() uint16 { return p.wValue }

// Index returns the raw wIndex field.
func (p SetupPacket) Index() uint16 { return p.wIndex }

// Length returns the raw wLength field: the maximum number of bytes the
// host expects in the data stage.
func (p SetupPacket) Length() uint16 { return p.wLength }

// DescriptorRequest decodes wValue into its (descriptor type, descriptor
// index) pair, as used by GetDescriptor/SetDescriptor.
func (p SetupPacket) DescriptorRequest() (descriptorType uint8, descriptorIndex uint8) {
	return uint8(p.wValue >> 8), uint8(p.wValue)
}
