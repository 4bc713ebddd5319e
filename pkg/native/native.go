// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package native is the runtime that owns container control blocks, their
// buffers and uniquely owned objects. Everything it hands out lives in memory
// mapped outside the Go heap, and is only reachable through the foreign calls
// declared in this package.
package native

import (
	"unsafe"
)

const (
	flagOwning uint16 = 1 << iota
)

// RawVector is the control block of a runtime-owned resizable array.
// Callers outside this package treat it as opaque and pass it to the
// Vector* calls.
type RawVector struct {
	begin    uintptr
	end      uintptr
	capEnd   uintptr
	elemSize uint32
	runtime  uint16
	flags    uint16
}

// RawBitVector is the control block of a runtime-owned packed bit array.
type RawBitVector struct {
	words    uintptr
	nbits    uint64
	capWords uint64
	runtime  uint16
	_        [3]uint16
}

// UniquePtr is a slot that uniquely owns one runtime object.
type UniquePtr struct {
	addr uintptr
}

const (
	RawVectorSize    = 32
	RawBitVectorSize = 32
	UniquePtrSize    = unsafe.Sizeof(UniquePtr{})
)

// layouts are part of the runtime ABI
var (
	_ [RawVectorSize - unsafe.Sizeof(RawVector{})]struct{}
	_ [unsafe.Sizeof(RawVector{}) - RawVectorSize]struct{}
	_ [RawBitVectorSize - unsafe.Sizeof(RawBitVector{})]struct{}
	_ [unsafe.Sizeof(RawBitVector{}) - RawBitVectorSize]struct{}
)

func (p UniquePtr) IsNil() bool {
	return p.addr == 0
}

// Get returns the owned object, or nil.
func (p UniquePtr) Get() unsafe.Pointer {
	return pointerAt(p.addr)
}

// pointerAt converts an address handed out by a runtime. Such addresses
// never refer to the Go heap. This is the only place an address turns back
// into a pointer.
func pointerAt(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

func bytesAt(addr uintptr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(pointerAt(addr)), n)
}

func addressOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
