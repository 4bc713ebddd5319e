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

package native

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/matrixorigin/nativevec/pkg/common/malloc"
	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/logutil"
)

// The Vector* functions are the foreign calls of RawVector. None of them
// locks the vector. Any call that adds elements may move the buffer.

func VectorSize(h *RawVector) int {
	return int((h.end - h.begin) / uintptr(h.elemSize))
}

func VectorCapacity(h *RawVector) int {
	return int((h.capEnd - h.begin) / uintptr(h.elemSize))
}

func VectorElemSize(h *RawVector) uint32 {
	return h.elemSize
}

func VectorIsOwning(h *RawVector) bool {
	return h.flags&flagOwning != 0
}

// VectorRuntime returns the runtime that owns h.
func VectorRuntime(h *RawVector) *Runtime {
	return lookup(h.runtime)
}

// VectorData returns the first element, or nil for a vector that never grew.
func VectorData(h *RawVector) unsafe.Pointer {
	return pointerAt(h.begin)
}

// VectorErase removes element i and shifts the tail down by one. An owning
// vector destroys the pointee of the erased slot.
func VectorErase(h *RawVector, i int) {
	n := VectorSize(h)
	if i < 0 || i >= n {
		panic(moerr.NewOutOfRangeNoCtx("vector", "erase index %d, size %d", i, n))
	}
	es := uintptr(h.elemSize)
	if VectorIsOwning(h) {
		p := *(*UniquePtr)(pointerAt(h.begin + uintptr(i)*es))
		if !p.IsNil() {
			freeObject(p)
		}
	}
	buf := bytesAt(h.begin, uintptr(n)*es)
	copy(buf[uintptr(i)*es:], buf[uintptr(i+1)*es:])
	h.end -= es
	clear(buf[h.end-h.begin:])
}

// VectorPushBack appends one element copied from value.
func VectorPushBack(h *RawVector, value unsafe.Pointer) {
	if h.end == h.capEnd {
		r := lookup(h.runtime)
		r.growVector(h, max(2*VectorCapacity(h), r.cfg.InitialCapacity))
	}
	es := uintptr(h.elemSize)
	copy(bytesAt(h.end, es), unsafe.Slice((*byte)(value), es))
	h.end += es
}

// VectorReserve makes room for at least n elements.
func VectorReserve(h *RawVector, n int) {
	if n > VectorCapacity(h) {
		lookup(h.runtime).growVector(h, n)
	}
}

// VectorResolveOwning returns the object owned by slot i of an owning vector.
func VectorResolveOwning(h *RawVector, i int) unsafe.Pointer {
	if !VectorIsOwning(h) {
		panic(moerr.NewInvalidArgNoCtx("vector", "not an owning vector"))
	}
	n := VectorSize(h)
	if i < 0 || i >= n {
		panic(moerr.NewOutOfRangeNoCtx("vector", "index %d, size %d", i, n))
	}
	p := *(*UniquePtr)(pointerAt(h.begin + uintptr(i)*uintptr(h.elemSize)))
	if p.IsNil() {
		panic(moerr.NewInvalidStateNoCtx("slot %d owns no object", i))
	}
	return p.Get()
}

// VectorRelease destroys the elements and the buffer of h. h stays usable
// as an empty vector.
func VectorRelease(h *RawVector) {
	if h.begin == 0 {
		return
	}
	r := lookup(h.runtime)
	if VectorIsOwning(h) {
		// pointees may own vectors of their own, which destroying them releases
		for _, p := range unsafe.Slice((*UniquePtr)(pointerAt(h.begin)), VectorSize(h)) {
			if !p.IsNil() {
				freeObject(p)
			}
		}
	}
	r.free(blockBuffer, h.begin)
	h.begin, h.end, h.capEnd = 0, 0, 0
}

func (r *Runtime) growVector(h *RawVector, capacity int) {
	es := uintptr(h.elemSize)
	used := h.end - h.begin
	addr := r.mustAlloc(blockBuffer, uint64(capacity)*uint64(es), malloc.NoClear)
	copy(bytesAt(addr, used), bytesAt(h.begin, used))
	clear(bytesAt(addr+used, uintptr(capacity)*es-used))
	if h.begin != 0 {
		r.free(blockBuffer, h.begin)
	}
	logutil.Debug("native: vector grow",
		zap.String("runtime", r.cfg.Name),
		zap.Uint32("elem-size", h.elemSize),
		zap.Int("from", VectorCapacity(h)),
		zap.Int("to", capacity),
	)
	h.begin = addr
	h.end = addr + used
	h.capEnd = addr + uintptr(capacity)*es
	r.metrics.onGrow()
}
