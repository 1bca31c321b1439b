// USB descriptor model
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
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	deviceLength          = 18
	configurationLength   = 9
	interfaceLength       = 9
	endpointLength        = 7
	deviceQualifierLength = 10

	// maxStringCodeUnits is the maximum number of UTF-16 code units a
	// string descriptor payload may carry.
	maxStringCodeUnits = 126

	// languageIDEnglishUS is the only language this firmware advertises
	// in string descriptor index 0.
	languageIDEnglishUS = 0x0409
)

// DeviceDescriptor implements the USB 2.0 standard device descriptor
// (Table 9-8, USB Specification Revision 2.0).
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize     uint8
	VendorID          uint16
	ProductID         uint16
	BcdDevice         uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// SetDefaults initializes the primary personality's device descriptor
// values: composite class, 64-byte EP0, vendor 0x1D50 / product 0x60E6.
func (d *DeviceDescriptor) SetDefaults() {
	d.Length = deviceLength
	d.DescriptorType = DescriptorDevice
	d.BcdUSB = 0x0200
	d.MaxPacketSize = 64
	d.VendorID = 0x1d50
	d.ProductID = 0x60e6
	d.BcdDevice = 0x0040
	d.Manufacturer = 1
	d.Product = 2
	d.SerialNumber = 3
	d.NumConfigurations = 1
}

// Bytes serializes the descriptor to its 18-byte wire format.
func (d *DeviceDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// DeviceQualifierDescriptor implements the USB 2.0 device_qualifier
// descriptor (9.6.2, USB Specification Revision 2.0).
type DeviceQualifierDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	BcdUSB            uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize     uint8
	NumConfigurations uint8
	Reserved          uint8
}

// SetDefaults initializes default device-qualifier values.
func (d *DeviceQualifierDescriptor) SetDefaults() {
	d.Length = deviceQualifierLength
	d.DescriptorType = DescriptorDeviceQualifier
	d.BcdUSB = 0x0200
	d.MaxPacketSize = 64
	d.NumConfigurations = 1
}

// Bytes serializes the descriptor to its 10-byte wire format.
func (d *DeviceQualifierDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// EndpointDescriptor implements the USB 2.0 standard endpoint descriptor
// (Table 9-13, USB Specification Revision 2.0).
type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// Endpoint transfer types (bits 0-1 of Attributes).
const (
	TransferControl     = 0
	TransferIsochronous = 1
	TransferBulk        = 2
	TransferInterrupt   = 3
)

// SetDefaults initializes endpoint descriptor length/type fields.
func (d *EndpointDescriptor) SetDefaults() {
	d.Length = endpointLength
	d.DescriptorType = DescriptorEndpoint
}

// Number returns the endpoint number (low nibble of EndpointAddress).
func (d *EndpointDescriptor) Number() int {
	return int(d.EndpointAddress & 0x0f)
}

// IsIN reports whether the endpoint is a device-to-host (IN) endpoint.
func (d *EndpointDescriptor) IsIN() bool {
	return d.EndpointAddress&0x80 != 0
}

// Bytes serializes the descriptor to its 7-byte wire format.
func (d *EndpointDescriptor) Bytes() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// InterfaceDescriptor implements the USB 2.0 standard interface descriptor
// (Table 9-12, USB Specification Revision 2.0).
type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	Interface         uint8

	Endpoints []*EndpointDescriptor
}

// SetDefaults initializes interface descriptor length/type fields.
func (d *InterfaceDescriptor) SetDefaults() {
	d.Length = interfaceLength
	d.DescriptorType = DescriptorInterface
	d.InterfaceClass = 0xff
	d.InterfaceSubClass = 0xff
	d.InterfaceProtocol = 0xff
}

// Bytes serializes the fixed-size interface header (nested endpoint
// descriptors are emitted separately by ConfigurationDescriptor.Bytes).
func (d *InterfaceDescriptor) Bytes() []byte {
	d.NumEndpoints = uint8(len(d.Endpoints))

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)
	binary.Write(buf, binary.LittleEndian, d.InterfaceNumber)
	binary.Write(buf, binary.LittleEndian, d.AlternateSetting)
	binary.Write(buf, binary.LittleEndian, d.NumEndpoints)
	binary.Write(buf, binary.LittleEndian, d.InterfaceClass)
	binary.Write(buf, binary.LittleEndian, d.InterfaceSubClass)
	binary.Write(buf, binary.LittleEndian, d.InterfaceProtocol)
	binary.Write(buf, binary.LittleEndian, d.Interface)

	return buf.Bytes()
}

// ConfigurationDescriptor implements the USB 2.0 standard configuration
// descriptor (Table 9-10, USB Specification Revision 2.0), hierarchical:
// a configuration header followed by an ordered sequence of interfaces,
// each followed by its ordered sequence of endpoints.
type ConfigurationDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	Configuration      uint8
	Attributes         uint8
	MaxPower           uint8

	Interfaces []*InterfaceDescriptor
}

// SetDefaults initializes configuration descriptor length/type fields.
func (d *ConfigurationDescriptor) SetDefaults() {
	d.Length = configurationLength
	d.DescriptorType = DescriptorConfiguration
	d.ConfigurationValue = 1
	d.Attributes = 0x80
	d.MaxPower = 250
}

// Bytes serializes the full configuration hierarchy: configuration header,
// then every interface header, then every endpoint descriptor, in
// declaration order. TotalLength is recomputed to match what is emitted.
func (d *ConfigurationDescriptor) Bytes() []byte {
	d.NumInterfaces = uint8(len(d.Interfaces))

	var body []byte
	for _, iface := range d.Interfaces {
		body = append(body, iface.Bytes()...)
		for _, ep := range iface.Endpoints {
			body = append(body, ep.Bytes()...)
		}
	}

	d.TotalLength = uint16(d.Length) + uint16(len(body))

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, d.Length)
	binary.Write(buf, binary.LittleEndian, d.DescriptorType)
	binary.Write(buf, binary.LittleEndian, d.TotalLength)
	binary.Write(buf, binary.LittleEndian, d.NumInterfaces)
	binary.Write(buf, binary.LittleEndian, d.ConfigurationValue)
	binary.Write(buf, binary.LittleEndian, d.Configuration)
	binary.Write(buf, binary.LittleEndian, d.Attributes)
	binary.Write(buf, binary.LittleEndian, d.MaxPower)

	return append(buf.Bytes(), body...)
}

// StringDescriptor is a UTF-8 source string serialized as a length-prefixed
// UTF-16LE sequence (9.6.7, USB Specification Revision 2.0).
type StringDescriptor struct {
	source string
}

// NewStringDescriptor validates and wraps a UTF-8 string for serialization.
// Strings longer than maxStringCodeUnits UTF-16 code units are rejected:
// the wire length byte cannot represent them.
func NewStringDescriptor(s string) (*StringDescriptor, error) {
	if n := len(utf16.Encode([]rune(s))); n > maxStringCodeUnits {
		return nil, fmt.Errorf("string descriptor %q exceeds %d UTF-16 code units", s, maxStringCodeUnits)
	}

	return &StringDescriptor{source: s}, nil
}

// Bytes serializes the descriptor: [length, 0x03] followed by the UTF-16LE
// encoding of the source string.
func (d *StringDescriptor) Bytes() []byte {
	units := utf16.Encode([]rune(d.source))

	buf := make([]byte, 2, 2+2*len(units))
	buf[1] = DescriptorString

	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}

	buf[0] = uint8(len(buf))

	return buf
}

// LanguageTable serializes string descriptor index 0: a single supported
// language, US English.
func LanguageTable() []byte {
	return []byte{4, DescriptorString, byte(languageIDEnglishUS & 0xff), byte(languageIDEnglishUS >> 8)}
}

// Device aggregates the descriptor set and host-driven settings for one
// USB personality, shared by every UsbDevice that enumerates with it.
type Device struct {
	Descriptor  *DeviceDescriptor
	Qualifier   *DeviceQualifierDescriptor
	Config      *ConfigurationDescriptor
	OtherSpeed  *ConfigurationDescriptor
	Strings     []*StringDescriptor

	ConfigurationValue uint8
}

// String returns the serialized string descriptor for index i (1-based;
// index 0 is the language table, handled separately).
func (d *Device) String(index uint8) ([]byte, error) {
	if index == 0 || int(index) > len(d.Strings) {
		return nil, fmt.Errorf("invalid string descriptor index %d", index)
	}

	return d.Strings[index-1].Bytes(), nil
}

// Configuration returns the configuration descriptor bytes, clamped to
// wLength, as returned by GetDescriptor for the Configuration type
// (9.4.3, USB Specification Revision 2.0).
func (d *Device) Configuration(wLength uint16) []byte {
	return clamp(d.Config.Bytes(), wLength)
}

// clamp trims buf to at most wLength bytes; the device may legitimately
// return fewer bytes than requested.
func clamp(buf []byte, wLength uint16) []byte {
	if int(wLength) < len(buf) {
		return buf[:wLength]
	}

	return buf
}
