// Multi-PHY USB device controller firmware
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Command moondancer is the firmware entry point: it wires the three PHYs
// to their SoC peripherals, builds the GCP class registry, and runs the
// cooperative main loop that drains the event mailbox produced by the
// machine-external-interrupt classifier.
package main

import (
	"log"

	"github.com/trident-fw/trident/gcp"
	"github.com/trident-fw/trident/isr"
	"github.com/trident-fw/trident/mailbox"
	"github.com/trident-fw/trident/soc/trident"
	"github.com/trident-fw/trident/speedtest"
	"github.com/trident-fw/trident/usb"
)

// events is the single mailbox shared by all three PHYs: one main loop
// drains all of them rather than running one loop per PHY.
var events = mailbox.New(128)

// phyOf maps a PLIC source id back to its logical PHY identity.
func phyOf(source int) usb.Phy {
	switch source {
	case trident.TARGET_PHY_IRQ:
		return usb.Target
	case trident.AUX_PHY_IRQ:
		return usb.Aux
	case trident.CONTROL_PHY_IRQ:
		return usb.Control
	default:
		return usb.Target
	}
}

// MachineExternal is installed as the machine-external-interrupt trap
// vector; it runs with interrupts masked and must not allocate beyond what
// isr.Handle already does.
func MachineExternal() {
	isr.Handle(trident.PLIC, phyOf, events)
}

func buildDevice() *usb.Device {
	desc := &usb.DeviceDescriptor{}
	desc.SetDefaults()

	qualifier := &usb.DeviceQualifierDescriptor{}
	qualifier.SetDefaults()

	bulkIn := &usb.EndpointDescriptor{EndpointAddress: 0x81, Attributes: usb.TransferBulk, MaxPacketSize: 512}
	bulkIn.SetDefaults()

	bulkOut := &usb.EndpointDescriptor{EndpointAddress: 0x02, Attributes: usb.TransferBulk, MaxPacketSize: 512}
	bulkOut.SetDefaults()

	vendorIface := &usb.InterfaceDescriptor{}
	vendorIface.SetDefaults()

	dataIface := &usb.InterfaceDescriptor{InterfaceNumber: 1}
	dataIface.SetDefaults()
	dataIface.Endpoints = []*usb.EndpointDescriptor{bulkIn, bulkOut}

	config := &usb.ConfigurationDescriptor{}
	config.SetDefaults()
	config.Interfaces = []*usb.InterfaceDescriptor{vendorIface, dataIface}

	otherSpeedBulkIn := &usb.EndpointDescriptor{EndpointAddress: 0x81, Attributes: usb.TransferBulk, MaxPacketSize: 64}
	otherSpeedBulkIn.SetDefaults()

	otherSpeedBulkOut := &usb.EndpointDescriptor{EndpointAddress: 0x02, Attributes: usb.TransferBulk, MaxPacketSize: 64}
	otherSpeedBulkOut.SetDefaults()

	otherSpeedVendorIface := &usb.InterfaceDescriptor{}
	otherSpeedVendorIface.SetDefaults()

	otherSpeedDataIface := &usb.InterfaceDescriptor{InterfaceNumber: 1}
	otherSpeedDataIface.SetDefaults()
	otherSpeedDataIface.Endpoints = []*usb.EndpointDescriptor{otherSpeedBulkIn, otherSpeedBulkOut}

	otherSpeed := &usb.ConfigurationDescriptor{}
	otherSpeed.SetDefaults()
	otherSpeed.Interfaces = []*usb.InterfaceDescriptor{otherSpeedVendorIface, otherSpeedDataIface}

	manufacturer, err := usb.NewStringDescriptor("Great Scott Gadgets")
	if err != nil {
		panic(err)
	}
	product, err := usb.NewStringDescriptor("Moondancer")
	if err != nil {
		panic(err)
	}
	serial, err := usb.NewStringDescriptor("040")
	if err != nil {
		panic(err)
	}

	return &usb.Device{
		Descriptor: desc,
		Qualifier:  qualifier,
		Config:     config,
		OtherSpeed: otherSpeed,
		Strings:    []*usb.StringDescriptor{manufacturer, product, serial},
	}
}

func main() {
	trident.Init()

	log.SetOutput(trident.UART0)
	log.Printf("trident: %s firmware starting", trident.Model())

	for _, irq := range []int{trident.TARGET_PHY_IRQ, trident.AUX_PHY_IRQ, trident.CONTROL_PHY_IRQ} {
		trident.PLIC.Enable(irq)
	}
	trident.PLIC.SetThreshold(0)

	device := buildDevice()

	core := gcp.NewCoreClass()
	firmware := gcp.NewFirmwareClass(noopFlash{})
	moondancer := gcp.NewMoondancerClass(&gcp.Moondancer{Ctrl: trident.TargetPHY})

	registry := gcp.NewRegistry(core, firmware, moondancer)

	dispatcher := &gcp.Dispatcher{Registry: registry, Ctrl: trident.ControlPHY}

	controlDevice := &usb.UsbDevice{
		Phy:           usb.Control,
		Ctrl:          trident.ControlPHY,
		Dev:           device,
		VendorRequest: dispatcher.HandleVendorRequest,
	}

	runner := &speedtest.Runner{Ctrl: trident.AuxPHY, Clock: trident.CLINT}

	trident.RV64.Init()

	trident.ControlPHY.Connect()
	trident.AuxPHY.Connect()

	mainLoop(controlDevice, dispatcher, runner)
}

// mainLoop is the cooperative consumer side of the interrupt pipeline: it
// dequeues events (never blocking) and routes them by PHY and kind.
func mainLoop(control *usb.UsbDevice, dispatcher *gcp.Dispatcher, runner *speedtest.Runner) {
	for {
		runner.Step()

		e, err := events.Dequeue()
		if err != nil {
			continue
		}

		switch e.Phy {
		case usb.Control:
			handleControlEvent(control, dispatcher, e)
		case usb.Aux:
			handleAuxEvent(runner, e)
		case usb.Target:
			// Enumerable as a generic USB device, with no command
			// channel of its own.
		}
	}
}

func handleControlEvent(control *usb.UsbDevice, dispatcher *gcp.Dispatcher, e mailbox.Event) {
	switch e.Kind {
	case mailbox.ReceiveSetupPacket:
		control.HandleSetupRequest(e.Setup)
	case mailbox.BusReset:
		control.Ctrl.BusReset()
	case mailbox.ErrorMessage:
		log.Printf("control: %s", e.Message)
	case mailbox.UnknownInterrupt:
		log.Printf("control: unknown interrupt %#x", e.PendingBits)
	}
}

func handleAuxEvent(runner *speedtest.Runner, e mailbox.Event) {
	switch e.Kind {
	case mailbox.ReceivePacket:
		if e.Endpoint == 2 && e.BytesRead > 0 {
			runner.HandleControlByte(e.Data[0])
		}
	case mailbox.BusReset:
		runner.Ctrl.BusReset()
	}
}

// noopFlash is a placeholder Flash implementation: flash geometry and
// write endurance are outside this firmware's scope.
type noopFlash struct{}

func (noopFlash) Initialize(pageSize, totalSize uint32) error { return nil }
func (noopFlash) FullErase() error                            { return nil }
func (noopFlash) PageErase(address uint32) error              { return nil }
func (noopFlash) WritePage(address uint32, data []byte) error { return nil }
func (noopFlash) ReadPage(address uint32) ([]byte, error)     { return make([]byte, 256), nil }
