// GCP core class: introspection verbs
// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gcp

import "encoding/binary"

// BoardID, VersionString, PartID and SerialNumber are the static identity
// values returned by the core class's read_* verbs.
var (
	BoardID       = [4]byte{0x00, 0x00, 0x00, 0x00}
	VersionString = "v2023.0.1\x00"
	PartID        = [8]byte{}
	SerialNumber  = [16]byte{}
)

// CoreClassID is the fixed class id for the core introspection class.
const CoreClassID = 0x00

// NewCoreClass builds the core class (id 0x00): board/version/part/serial
// identity plus class and verb introspection. The introspection verbs
// describe the registry most recently built by NewRegistry, because the
// core class must describe the very registry it is a member of.
func NewCoreClass() *Class {
	c := &Class{
		ID:   CoreClassID,
		Name: "core",
		Doc:  "Core device identity and introspection verbs.",
	}

	c.Verbs = []Verb{
		{ID: 0x0, Name: "read_board_id", Doc: "Return the board identifier.",
			OutSignature: "<I", Handler: func([]byte) ([]byte, error) { return BoardID[:], nil }},
		{ID: 0x1, Name: "read_version_string", Doc: "Return the firmware version string.",
			OutSignature: "<*X", Handler: func([]byte) ([]byte, error) { return []byte(VersionString), nil }},
		{ID: 0x2, Name: "read_part_id", Doc: "Return the MCU part identifier.",
			OutSignature: "<*X", Handler: func([]byte) ([]byte, error) { return PartID[:], nil }},
		{ID: 0x3, Name: "read_serial_number", Doc: "Return the MCU unique identifier.",
			OutSignature: "<*X", Handler: func([]byte) ([]byte, error) { return SerialNumber[:], nil }},
		{ID: 0x4, Name: "get_available_classes", Doc: "Return the class ids available on this device.",
			OutSignature: "<*I", Handler: c.handleGetAvailableClasses},
		{ID: 0x5, Name: "get_available_verbs", Doc: "Return the verb ids available within a class.",
			InSignature: "<I", OutSignature: "<*I", Handler: c.handleGetAvailableVerbs},
		{ID: 0x6, Name: "get_verb_name", Doc: "Return the printable name of a verb.",
			InSignature: "<II", OutSignature: "<*X", Handler: c.handleGetVerbName},
		{ID: 0x7, Name: "get_verb_descriptor", Doc: "Return a signature string for a verb.",
			InSignature: "<IIB", OutSignature: "<*X", Handler: c.handleGetVerbDescriptor},
		{ID: 0x8, Name: "get_class_name", Doc: "Return the printable name of a class.",
			InSignature: "<I", OutSignature: "<*X", Handler: c.handleGetClassName},
		{ID: 0x9, Name: "get_class_docs", Doc: "Return the documentation string of a class.",
			InSignature: "<I", OutSignature: "<*X", Handler: c.handleGetClassDocs},
	}

	return c
}

// registryOf is set by every NewRegistry call so the core class's introspection
// verbs can walk the full registry they are themselves a member of.
var registryOf Registry

func (c *Class) handleGetAvailableClasses(args []byte) ([]byte, error) {
	out := make([]byte, 4*len(registryOf))
	for i, cls := range registryOf {
		binary.LittleEndian.PutUint32(out[i*4:], cls.ID)
	}

	return out, nil
}

func (c *Class) handleGetAvailableVerbs(args []byte) ([]byte, error) {
	if len(args) < 4 {
		return nil, ErrUnknownClass
	}

	classID := binary.LittleEndian.Uint32(args)

	cls, ok := registryOf.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	out := make([]byte, 4*len(cls.Verbs))
	for i, v := range cls.Verbs {
		binary.LittleEndian.PutUint32(out[i*4:], v.ID)
	}

	return out, nil
}

func (c *Class) handleGetVerbName(args []byte) ([]byte, error) {
	if len(args) < 8 {
		return nil, ErrUnknownVerb
	}

	classID := binary.LittleEndian.Uint32(args[0:4])
	verbID := binary.LittleEndian.Uint32(args[4:8])

	cls, ok := registryOf.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	verb, ok := cls.verb(verbID)
	if !ok {
		return nil, ErrUnknownVerb
	}

	return append([]byte(verb.Name), 0), nil
}

func (c *Class) handleGetVerbDescriptor(args []byte) ([]byte, error) {
	if len(args) < 9 {
		return nil, ErrUnknownVerb
	}

	classID := binary.LittleEndian.Uint32(args[0:4])
	verbID := binary.LittleEndian.Uint32(args[4:8])
	selector := args[8]

	cls, ok := registryOf.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	verb, ok := cls.verb(verbID)
	if !ok {
		return nil, ErrUnknownVerb
	}

	// selector 0 = input signature, selector 1 = output signature,
	// matching the descriptor field order documented on the original
	// verb table.
	if selector == 0 {
		return append([]byte(verb.InSignature), 0), nil
	}

	return append([]byte(verb.OutSignature), 0), nil
}

func (c *Class) handleGetClassName(args []byte) ([]byte, error) {
	if len(args) < 4 {
		return nil, ErrUnknownClass
	}

	classID := binary.LittleEndian.Uint32(args)

	cls, ok := registryOf.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	return append([]byte(cls.Name), 0), nil
}

func (c *Class) handleGetClassDocs(args []byte) ([]byte, error) {
	if len(args) < 4 {
		return nil, ErrUnknownClass
	}

	classID := binary.LittleEndian.Uint32(args)

	cls, ok := registryOf.class(classID)
	if !ok {
		return nil, ErrUnknownClass
	}

	return append([]byte(cls.Doc), 0), nil
}
