// GCP firmware class: flash management verbs
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
	"errors"
)

// FirmwareClassID is the fixed class id for the flash-management class.
const FirmwareClassID = 0x01

// Flash is the minimal persistence contract the firmware class drives.
// Its implementation (flash geometry, write endurance, locking) is outside
// this core; only the verb routing lives here.
type Flash interface {
	Initialize(pageSize, totalSize uint32) error
	FullErase() error
	PageErase(address uint32) error
	WritePage(address uint32, data []byte) error
	ReadPage(address uint32) ([]byte, error)
}

// NewFirmwareClass builds the firmware class (id 0x01) over the given
// Flash implementation.
func NewFirmwareClass(flash Flash) *Class {
	return &Class{
		ID:   FirmwareClassID,
		Name: "firmware",
		Doc:  "Firmware update and flash management verbs.",
		Verbs: []Verb{
			{ID: 0x0, Name: "initialize", Doc: "Prepare the flash for a firmware update.",
				InSignature: "<II", Handler: func(args []byte) ([]byte, error) {
					if len(args) < 8 {
						return nil, errShortArguments
					}
					pageSize := binary.LittleEndian.Uint32(args[0:4])
					totalSize := binary.LittleEndian.Uint32(args[4:8])
					return nil, flash.Initialize(pageSize, totalSize)
				}},
			{ID: 0x1, Name: "full_erase", Doc: "Erase the entire flash.",
				Handler: func([]byte) ([]byte, error) { return nil, flash.FullErase() }},
			{ID: 0x2, Name: "page_erase", Doc: "Erase a single flash page.",
				InSignature: "<I", Handler: func(args []byte) ([]byte, error) {
					if len(args) < 4 {
						return nil, errShortArguments
					}
					return nil, flash.PageErase(binary.LittleEndian.Uint32(args))
				}},
			{ID: 0x3, Name: "write_page", Doc: "Write a single flash page.",
				InSignature: "<I*X", Handler: func(args []byte) ([]byte, error) {
					if len(args) < 4 {
						return nil, errShortArguments
					}
					address := binary.LittleEndian.Uint32(args[0:4])
					return nil, flash.WritePage(address, args[4:])
				}},
			{ID: 0x4, Name: "read_page", Doc: "Read a single flash page.",
				InSignature: "<I", OutSignature: "<*X", Handler: func(args []byte) ([]byte, error) {
					if len(args) < 4 {
						return nil, errShortArguments
					}
					return flash.ReadPage(binary.LittleEndian.Uint32(args))
				}},
		},
	}
}

var errShortArguments = errors.New("gcp: verb arguments too short")
