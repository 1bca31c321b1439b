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
	"testing"
)

type recordingFlash struct {
	initialized          bool
	erased               bool
	erasedPage           uint32
	writtenAddr          uint32
	writtenData          []byte
	readAddr             uint32
	failNext             error
}

func (f *recordingFlash) Initialize(pageSize, totalSize uint32) error {
	f.initialized = true
	return f.failNext
}

func (f *recordingFlash) FullErase() error {
	f.erased = true
	return f.failNext
}

func (f *recordingFlash) PageErase(address uint32) error {
	f.erasedPage = address
	return f.failNext
}

func (f *recordingFlash) WritePage(address uint32, data []byte) error {
	f.writtenAddr = address
	f.writtenData = data
	return f.failNext
}

func (f *recordingFlash) ReadPage(address uint32) ([]byte, error) {
	f.readAddr = address
	return []byte{1, 2, 3, 4}, f.failNext
}

func TestFirmwarePageEraseDecodesAddress(t *testing.T) {
	flash := &recordingFlash{}
	class := NewFirmwareClass(flash)
	registry := NewRegistry(class)

	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, 0x0800_1000)

	if _, err := registry.Dispatch(FirmwareClassID, 0x2, args); err != nil {
		t.Fatalf("Dispatch(page_erase): %v", err)
	}

	if flash.erasedPage != 0x0800_1000 {
		t.Fatalf("erasedPage = %#x, want 0x08001000", flash.erasedPage)
	}
}

func TestFirmwareWritePageSplitsAddressAndPayload(t *testing.T) {
	flash := &recordingFlash{}
	class := NewFirmwareClass(flash)
	registry := NewRegistry(class)

	args := make([]byte, 4+3)
	binary.LittleEndian.PutUint32(args, 0x100)
	copy(args[4:], []byte{0xaa, 0xbb, 0xcc})

	if _, err := registry.Dispatch(FirmwareClassID, 0x3, args); err != nil {
		t.Fatalf("Dispatch(write_page): %v", err)
	}

	if flash.writtenAddr != 0x100 {
		t.Fatalf("writtenAddr = %#x, want 0x100", flash.writtenAddr)
	}
	if string(flash.writtenData) != "\xaa\xbb\xcc" {
		t.Fatalf("writtenData = % x, want aa bb cc", flash.writtenData)
	}
}

func TestFirmwareReadPageReturnsFlashError(t *testing.T) {
	wantErr := errors.New("flash: timeout")
	flash := &recordingFlash{failNext: wantErr}
	class := NewFirmwareClass(flash)
	registry := NewRegistry(class)

	args := make([]byte, 4)

	if _, err := registry.Dispatch(FirmwareClassID, 0x4, args); err != wantErr {
		t.Fatalf("Dispatch(read_page) error = %v, want %v", err, wantErr)
	}
}

func TestFirmwareShortArgumentsRejected(t *testing.T) {
	class := NewFirmwareClass(&recordingFlash{})
	registry := NewRegistry(class)

	if _, err := registry.Dispatch(FirmwareClassID, 0x2, []byte{0x01}); err != errShortArguments {
		t.Fatalf("Dispatch(page_erase, short args) = %v, want errShortArguments", err)
	}
}
