// USB device state machine
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "log"

// Phy identifies one of the three USB PHYs sharing a single event mailbox
// and main loop.
type Phy int

const (
	Target Phy = iota
	Aux
	Control
)

// String names a Phy for logging.
func (p Phy) String() string {
	switch p {
	case Target:
		return "target"
	case Aux:
		return "aux"
	case Control:
		return "control"
	default:
		return "unknown"
	}
}

// VendorRequestHandler inspects a non-standard setup packet and drives the
// driver directly (write, stall, AckStatusStage). It must not mutate
// device state beyond the single exchange it is handling.
type VendorRequestHandler func(pkt SetupPacket) error

// StringRequestHandler serves a String descriptor GetDescriptor request,
// returning the raw descriptor bytes (already clamped to wLength) or an
// error, which the caller turns into a stall.
type StringRequestHandler func(index uint8, wLength uint16) ([]byte, error)

// UsbDevice is the per-PHY device-state-machine instance: a driver handle,
// its descriptor set, and the optional vendor/class escape hatches.
type UsbDevice struct {
	Phy  Phy
	Ctrl *Controller
	Dev  *Device

	// VendorRequest handles class/vendor setup requests; if nil, such
	// requests stall.
	VendorRequest VendorRequestHandler
	// StringRequest overrides string descriptor serving; if nil, Dev's
	// built-in string table is used.
	StringRequest StringRequestHandler

	configuration uint8
}

// HandleSetupRequest dispatches a decoded setup packet: standard requests
// are handled here; anything else is handed to VendorRequest, or stalled
// if none is registered.
func (d *UsbDevice) HandleSetupRequest(pkt SetupPacket) {
	rt := pkt.RequestType()

	if rt.Type != Standard {
		if d.VendorRequest != nil {
			if err := d.VendorRequest(pkt); err != nil {
				log.Printf("usb: %s vendor request error: %v", d.Phy, err)
				d.Ctrl.StallRequest()
			}
			return
		}

		d.Ctrl.StallRequest()
		return
	}

	req := pkt.Request()
	if !req.Standard {
		d.Ctrl.StallRequest()
		return
	}

	switch req.StandardCode {
	case SetAddress:
		d.Ctrl.AckStatusStage(&pkt)
		d.Ctrl.SetAddress(uint8(pkt.Value() & 0x7f))
	case GetDescriptor:
		d.handleGetDescriptor(pkt)
	case SetConfiguration:
		if pkt.Value() > 1 {
			d.Ctrl.StallRequest()
			return
		}
		d.configuration = uint8(pkt.Value())
		d.Ctrl.AckStatusStage(&pkt)
	case GetConfiguration:
		d.Ctrl.Write(0, []byte{d.configuration})
		d.Ctrl.AckStatusStage(&pkt)
	case ClearFeature:
		// Endpoint-halt / remote-wakeup flags are not separately
		// tracked by this controller; acknowledge and move on.
		d.Ctrl.AckStatusStage(&pkt)
	case GetStatus:
		d.Ctrl.Write(0, []byte{0, 0})
		d.Ctrl.AckStatusStage(&pkt)
	case SetFeature, SetInterface:
		d.Ctrl.AckStatusStage(&pkt)
	case GetInterface:
		d.Ctrl.Write(0, []byte{0})
		d.Ctrl.AckStatusStage(&pkt)
	default:
		d.Ctrl.StallRequest()
	}
}

func (d *UsbDevice) handleGetDescriptor(pkt SetupPacket) {
	descType, descIndex := pkt.DescriptorRequest()
	wLength := pkt.Length()

	var payload []byte

	switch descType {
	case DescriptorDevice:
		payload = clamp(d.Dev.Descriptor.Bytes(), wLength)
	case DescriptorDeviceQualifier:
		if d.Dev.Qualifier == nil {
			d.Ctrl.StallRequest()
			return
		}
		payload = clamp(d.Dev.Qualifier.Bytes(), wLength)
	case DescriptorConfiguration:
		payload = d.Dev.Configuration(wLength)
	case DescriptorOtherSpeedConfiguration:
		if d.Dev.OtherSpeed == nil {
			d.Ctrl.StallRequest()
			return
		}
		payload = clamp(d.Dev.OtherSpeed.Bytes(), wLength)
	case DescriptorString:
		if descIndex == 0 {
			payload = clamp(LanguageTable(), wLength)
			break
		}

		var err error
		if d.StringRequest != nil {
			payload, err = d.StringRequest(descIndex, wLength)
		} else {
			payload, err = d.Dev.String(descIndex)
			payload = clamp(payload, wLength)
		}

		if err != nil {
			d.Ctrl.StallRequest()
			return
		}
	default:
		d.Ctrl.StallRequest()
		return
	}

	d.Ctrl.Write(0, payload)
	d.Ctrl.AckStatusStage(&pkt)
}
