// https://github.com/trident-fw/trident
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gcp

import (
	"bytes"
	"testing"
)

func TestRegistryDispatchReadBoardID(t *testing.T) {
	core := NewCoreClass()
	registry := NewRegistry(core)

	// Scenario 3: read_board_id, class 0x00 verb 0x00, no arguments.
	out, err := registry.Dispatch(CoreClassID, 0x0, nil)
	if err != nil {
		t.Fatalf("Dispatch(read_board_id): %v", err)
	}

	if !bytes.Equal(out, BoardID[:]) {
		t.Fatalf("read_board_id = % x, want % x", out, BoardID[:])
	}
}

func TestRegistryDispatchReadVersionString(t *testing.T) {
	core := NewCoreClass()
	registry := NewRegistry(core)

	out, err := registry.Dispatch(CoreClassID, 0x1, nil)
	if err != nil {
		t.Fatalf("Dispatch(read_version_string): %v", err)
	}

	if string(out) != VersionString {
		t.Fatalf("read_version_string = %q, want %q", out, VersionString)
	}
}

func TestRegistryDispatchUnknownClass(t *testing.T) {
	registry := NewRegistry(NewCoreClass())

	if _, err := registry.Dispatch(0xff, 0x0, nil); err != ErrUnknownClass {
		t.Fatalf("Dispatch(unknown class) = %v, want ErrUnknownClass", err)
	}
}

func TestRegistryDispatchUnknownVerb(t *testing.T) {
	registry := NewRegistry(NewCoreClass())

	if _, err := registry.Dispatch(CoreClassID, 0xff, nil); err != ErrUnknownVerb {
		t.Fatalf("Dispatch(unknown verb) = %v, want ErrUnknownVerb", err)
	}
}

func TestCoreGetAvailableClasses(t *testing.T) {
	core := NewCoreClass()
	firmware := NewFirmwareClass(fakeFlash{})
	registry := NewRegistry(core, firmware)

	out, err := registry.Dispatch(CoreClassID, 0x4, nil)
	if err != nil {
		t.Fatalf("Dispatch(get_available_classes): %v", err)
	}

	if len(out) != 4*2 {
		t.Fatalf("get_available_classes len = %d, want 8 (two class ids)", len(out))
	}
}

func TestCoreGetVerbNameIsNulTerminated(t *testing.T) {
	registry := NewRegistry(NewCoreClass())

	args := make([]byte, 8)
	// class=0x00, verb=0x00 (read_board_id), little-endian.
	args[0] = CoreClassID

	out, err := registry.Dispatch(CoreClassID, 0x6, args)
	if err != nil {
		t.Fatalf("Dispatch(get_verb_name): %v", err)
	}

	if len(out) == 0 || out[len(out)-1] != 0 {
		t.Fatal("get_verb_name result must be NUL-terminated")
	}

	if string(out[:len(out)-1]) != "read_board_id" {
		t.Fatalf("get_verb_name = %q, want %q", out[:len(out)-1], "read_board_id")
	}
}

func TestActiveResponseSetTakeClear(t *testing.T) {
	var r ActiveResponse

	if r.present() {
		t.Fatal("present() should be false before set()")
	}

	r.set([]byte("hello, gcp"))

	if !r.present() {
		t.Fatal("present() should be true after set()")
	}

	first := r.take(5)
	if string(first) != "hello" {
		t.Fatalf("take(5) = %q, want %q", first, "hello")
	}

	rest := r.take(100)
	if string(rest) != ", gcp" {
		t.Fatalf("take(100) after partial read = %q, want %q", rest, ", gcp")
	}

	r.clear()
	if r.present() {
		t.Fatal("present() should be false after clear()")
	}
}

func TestActiveResponseTruncatesOversizedPayload(t *testing.T) {
	var r ActiveResponse

	oversized := make([]byte, responseBufferSize+128)
	r.set(oversized)

	if len(r.buf) != responseBufferSize {
		t.Fatalf("len(buf) = %d, want %d (truncated)", len(r.buf), responseBufferSize)
	}
}

func TestDecodeCommandPrelude(t *testing.T) {
	// Scenario 3's Begin data stage: class=0x00000000, verb=0x00000000.
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

	p := decodeCommandPrelude(data)
	if p.ClassID != 0 || p.VerbID != 0 {
		t.Fatalf("decodeCommandPrelude = %+v, want zero class/verb", p)
	}

	data = []byte{0x10, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00}
	p = decodeCommandPrelude(data)
	if p.ClassID != MoondancerClassID || p.VerbID != 2 {
		t.Fatalf("decodeCommandPrelude = %+v, want class=%#x verb=2", p, MoondancerClassID)
	}
}

type fakeFlash struct{}

func (fakeFlash) Initialize(pageSize, totalSize uint32) error { return nil }
func (fakeFlash) FullErase() error                            { return nil }
func (fakeFlash) PageErase(address uint32) error               { return nil }
func (fakeFlash) WritePage(address uint32, data []byte) error  { return nil }
func (fakeFlash) ReadPage(address uint32) ([]byte, error)      { return make([]byte, 256), nil }
