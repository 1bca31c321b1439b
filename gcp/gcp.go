// Great Communications Protocol dispatcher
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gcp implements the Great Communications Protocol: a three-phase
// vendor control transfer (Begin/Deliver/Retrieve) carrying an 8-byte
// class/verb prelude and verb-specific arguments, routed to a static
// registry of classes each exposing a numbered table of verbs.
package gcp

import (
	"encoding/binary"
	"errors"
	"log"

	"github.com/trident-fw/trident/usb"
)

// UsbCommandRequest is the vendor bRequest value carrying every GCP phase.
const UsbCommandRequest = 0x65

// Vendor request wValue values.
const (
	RequestStart  = 0x0000
	RequestCancel = 0xdead
)

// responseBufferSize bounds the shared staged-response buffer.
const responseBufferSize = 4096

// Verb is one numbered operation within a Class.
type Verb struct {
	ID   uint32
	Name string
	Doc  string

	InSignature  string
	OutSignature string

	// Handler runs the verb: arguments is the command payload following
	// the 8-byte prelude; the returned bytes are staged verbatim into
	// ActiveResponse, truncated to the shared buffer if necessary.
	Handler func(arguments []byte) ([]byte, error)
}

// Class is a namespace of related Verbs.
type Class struct {
	ID    uint32
	Name  string
	Doc   string
	Verbs []Verb
}

// verb looks up a verb by id within the class; linear search, since
// registries are small (typically <= 8 classes and a handful of verbs
// each).
func (c Class) verb(id uint32) (Verb, bool) {
	for _, v := range c.Verbs {
		if v.ID == id {
			return v, true
		}
	}

	return Verb{}, false
}

// Registry is the immutable, run-time-fixed table of Classes.
type Registry []Class

// NewRegistry builds the run-time class table and makes it available to
// the core class's introspection verbs (get_available_classes and
// friends), which must be able to describe the registry they are
// themselves a member of.
func NewRegistry(classes ...*Class) Registry {
	r := make(Registry, len(classes))
	for i, c := range classes {
		r[i] = *c
	}

	registryOf = r

	return r
}

// class looks up a class by id; linear search.
func (r Registry) class(id uint32) (Class, bool) {
	for _, c := range r {
		if c.ID == id {
			return c, true
		}
	}

	return Class{}, false
}

// ErrUnknownClass and ErrUnknownVerb are surfaced as a stall on the
// affected control endpoint by the Dispatcher.
var (
	ErrUnknownClass = errors.New("gcp: unknown class")
	ErrUnknownVerb  = errors.New("gcp: unknown verb")
)

// Dispatch routes a (classID, verbID) pair to its Verb handler.
func (r Registry) Dispatch(classID, verbID uint32, arguments []byte) ([]byte, error) {
	class, ok := r.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	verb, ok := class.verb(verbID)
	if !ok {
		return nil, ErrUnknownVerb
	}

	return verb.Handler(arguments)
}

// CommandPrelude is the first 8 bytes of every Deliver-phase payload.
type CommandPrelude struct {
	ClassID uint32
	VerbID  uint32
}

// decodeCommandPrelude parses the 8-byte prelude; the caller is
// responsible for the "short reads are ignored silently" rule (anything
// under 8 bytes never reaches here).
func decodeCommandPrelude(buf []byte) CommandPrelude {
	return CommandPrelude{
		ClassID: binary.LittleEndian.Uint32(buf[0:4]),
		VerbID:  binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// ActiveResponse is the single staged reply artifact for a PHY: a backing
// buffer and a read cursor, at most one outstanding at a time.
type ActiveResponse struct {
	buf    []byte
	cursor int
}

func (r *ActiveResponse) set(data []byte) {
	if len(data) > responseBufferSize {
		data = data[:responseBufferSize]
	}

	r.buf = data
	r.cursor = 0
}

func (r *ActiveResponse) clear() {
	r.buf = nil
	r.cursor = 0
}

func (r *ActiveResponse) present() bool {
	return r.buf != nil
}

// take returns up to n bytes from the cursor onward.
func (r *ActiveResponse) take(n int) []byte {
	if n > len(r.buf)-r.cursor {
		n = len(r.buf) - r.cursor
	}

	out := r.buf[r.cursor : r.cursor+n]
	r.cursor += n

	return out
}

// cancelSentinel is returned verbatim by a Cancel retrieve, regardless of
// whether a response was staged.
var cancelSentinel = []byte{0xde, 0xad, 0xde, 0xad}

// Dispatcher implements the three-phase GCP state machine for one PHY. It
// is wired in as a usb.VendorRequestHandler.
type Dispatcher struct {
	Registry Registry
	Ctrl     *usb.Controller

	response ActiveResponse
}

// HandleVendorRequest implements usb.VendorRequestHandler.
func (d *Dispatcher) HandleVendorRequest(pkt usb.SetupPacket) error {
	req := pkt.Request()
	if req.Raw != UsbCommandRequest {
		return errUnknownVendorRequest
	}

	rt := pkt.RequestType()

	switch {
	case rt.Direction == usb.HostToDevice && pkt.Value() == RequestStart:
		// Begin and Deliver share one control transfer: the setup
		// packet's data stage carries the CommandPrelude plus verb
		// arguments, read synchronously here before the status ack.
		if pkt.Length() > 0 {
			buf := make([]byte, pkt.Length())
			n := d.Ctrl.ReadControl(buf)

			if err := d.HandleCommandData(buf[:n]); err != nil {
				// The verb handler already stalled the request;
				// acking the status stage on top of that would
				// contradict the stall.
				return nil
			}
		}

		d.Ctrl.AckStatusStage(&pkt)
		return nil

	case rt.Direction == usb.DeviceToHost && pkt.Value() == RequestCancel:
		d.response.clear()
		d.Ctrl.Write(0, cancelSentinel)
		d.Ctrl.AckStatusStage(&pkt)
		return nil

	case rt.Direction == usb.DeviceToHost && pkt.Value() == RequestStart:
		if !d.response.present() {
			return errNoStagedResponse
		}

		payload := d.response.take(int(pkt.Length()))
		d.Ctrl.Write(0, payload)
		d.Ctrl.AckStatusStage(&pkt)
		d.response.clear()

		return nil
	}

	return errUnknownVendorRequest
}

// HandleCommandData processes the Deliver-phase payload read from EP0-OUT
// following a Begin. Short reads (<8 bytes) are ignored silently, per the
// external-interface contract; malformed preludes beyond that point are
// not distinguishable from a genuine unknown-class/verb and simply stall.
// It returns an error, and has already stalled the request, exactly when
// the verb dispatch itself failed.
func (d *Dispatcher) HandleCommandData(data []byte) error {
	if len(data) < 8 {
		return nil
	}

	prelude := decodeCommandPrelude(data)
	args := data[8:]

	result, err := d.Registry.Dispatch(prelude.ClassID, prelude.VerbID, args)
	if err != nil {
		log.Printf("gcp: dispatch class=%#x verb=%#x: %v", prelude.ClassID, prelude.VerbID, err)
		d.Ctrl.StallRequest()
		return err
	}

	d.response.set(result)
	return nil
}

var (
	errUnknownVendorRequest = errors.New("gcp: unknown vendor request")
	errNoStagedResponse     = errors.New("gcp: no staged response")
)
