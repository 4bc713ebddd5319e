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
	"testing"
	"unsafe"

	"github.com/prashantv/gostub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/nativevec/pkg/common/malloc"
	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

type point struct {
	X, Y int32
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	r, err := Open(Config{Name: t.Name()}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
	})
	return r
}

func requirePanicCode(t *testing.T, code uint16, fn func()) {
	t.Helper()
	var got any
	func() {
		defer func() {
			got = recover()
		}()
		fn()
	}()
	err, ok := got.(*moerr.Error)
	require.True(t, ok, "panic value %v", got)
	require.True(t, moerr.IsMoErrCode(err, code), err.Error())
}

func int64s(h *RawVector) []int64 {
	return unsafe.Slice((*int64)(VectorData(h)), VectorSize(h))
}

func TestLayout(t *testing.T) {
	require.Equal(t, uintptr(RawVectorSize), unsafe.Sizeof(RawVector{}))
	require.Equal(t, uintptr(RawBitVectorSize), unsafe.Sizeof(RawBitVector{}))
	require.Equal(t, unsafe.Sizeof(uintptr(0)), UniquePtrSize)
	require.Equal(t, uintptr(16), objectHeaderSize)
}

func TestPointerAt(t *testing.T) {
	r := newTestRuntime(t)
	addr, err := r.alloc(blockBuffer, 16, 0)
	require.NoError(t, err)
	defer r.free(blockBuffer, addr)

	buf := bytesAt(addr, 16)
	buf[3] = 42
	require.Equal(t, unsafe.Pointer(unsafe.SliceData(buf)), pointerAt(addr))
	require.Equal(t, byte(42), *(*byte)(pointerAt(addr + 3)))
	require.Equal(t, addr, addressOf(buf))
	require.True(t, pointerAt(0) == nil)
}

func TestVectorPushBackAndErase(t *testing.T) {
	r := newTestRuntime(t)
	h, err := r.NewVector(8, false)
	require.NoError(t, err)
	require.Equal(t, 0, VectorSize(h))
	require.Nil(t, VectorData(h))

	for i := int64(0); i < 10; i++ {
		VectorPushBack(h, unsafe.Pointer(&i))
	}
	require.Equal(t, 10, VectorSize(h))
	require.GreaterOrEqual(t, VectorCapacity(h), 10)
	require.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, int64s(h))

	VectorErase(h, 0)
	VectorErase(h, 8)
	VectorErase(h, 3)
	require.Equal(t, []int64{1, 2, 3, 5, 6, 7, 8}, int64s(h))

	requirePanicCode(t, moerr.ErrOutOfRange, func() { VectorErase(h, 7) })
	requirePanicCode(t, moerr.ErrOutOfRange, func() { VectorErase(h, -1) })

	stats := r.Stats()
	require.Equal(t, 1, stats.Vectors)
	require.Equal(t, 1, stats.Buffers)

	r.FreeVector(h)
	require.Equal(t, Stats{}, r.Stats())
}

func TestVectorReserve(t *testing.T) {
	r, err := Open(Config{Name: t.Name(), InitialCapacity: 2})
	require.NoError(t, err)
	defer r.Close()

	h, err := r.NewVector(uint32(unsafe.Sizeof(point{})), false)
	require.NoError(t, err)
	p := point{1, 2}
	VectorPushBack(h, unsafe.Pointer(&p))
	require.Equal(t, 2, VectorCapacity(h))

	VectorReserve(h, 100)
	require.Equal(t, 100, VectorCapacity(h))
	require.Equal(t, p, *(*point)(VectorData(h)))
	VectorReserve(h, 10)
	require.Equal(t, 100, VectorCapacity(h))
	r.FreeVector(h)
}

func TestOwningVector(t *testing.T) {
	tag := RegisterType[point]("point")
	r := newTestRuntime(t)

	requirePanicCode(t, moerr.ErrInvalidArg, func() { _, _ = r.NewVector(4, true) })

	h, err := r.NewVector(uint32(UniquePtrSize), true)
	require.NoError(t, err)
	require.True(t, VectorIsOwning(h))

	for i := int32(0); i < 3; i++ {
		obj, err := r.NewObject(tag, uint64(unsafe.Sizeof(point{})))
		require.NoError(t, err)
		*(*point)(obj.Get()) = point{i, -i}
		VectorPushBack(h, unsafe.Pointer(&obj))
	}
	require.Equal(t, 3, r.Stats().Objects)

	for i := 0; i < 3; i++ {
		p := VectorResolveOwning(h, i)
		require.Equal(t, tag, ObjectTag(p))
		require.Equal(t, point{int32(i), -int32(i)}, *(*point)(p))
	}

	VectorErase(h, 1)
	require.Equal(t, 2, r.Stats().Objects)
	require.Equal(t, point{2, -2}, *(*point)(VectorResolveOwning(h, 1)))
	requirePanicCode(t, moerr.ErrOutOfRange, func() { VectorResolveOwning(h, 2) })

	r.FreeVector(h)
	require.Equal(t, Stats{}, r.Stats())
}

func TestResolveNonOwning(t *testing.T) {
	r := newTestRuntime(t)
	h, err := r.NewVector(8, false)
	require.NoError(t, err)
	v := int64(1)
	VectorPushBack(h, unsafe.Pointer(&v))
	requirePanicCode(t, moerr.ErrInvalidArg, func() { VectorResolveOwning(h, 0) })
}

func TestBitVector(t *testing.T) {
	r := newTestRuntime(t)
	h, err := r.NewBitVector()
	require.NoError(t, err)

	for i := 0; i < 130; i++ {
		BitVectorPushBack(h, i%3 == 0)
	}
	require.Equal(t, 130, BitVectorSize(h))
	require.Equal(t, 44, BitVectorCount(h))
	for i := 0; i < 130; i++ {
		require.Equal(t, i%3 == 0, BitVectorGet(h, i), "bit %d", i)
	}

	BitVectorSet(h, 1, true)
	BitVectorSet(h, 0, false)
	require.True(t, BitVectorGet(h, 1))
	require.False(t, BitVectorGet(h, 0))
	requirePanicCode(t, moerr.ErrOutOfRange, func() { BitVectorGet(h, 130) })

	// shrinking clears the dropped bits
	BitVectorResize(h, 70)
	BitVectorResize(h, 300)
	require.Equal(t, 300, BitVectorSize(h))
	for i := 70; i < 300; i++ {
		require.False(t, BitVectorGet(h, i), "bit %d", i)
	}

	BitVectorResize(h, 0)
	require.Equal(t, 0, BitVectorCount(h))
	requirePanicCode(t, moerr.ErrInvalidArg, func() { BitVectorResize(h, -1) })

	r.FreeBitVector(h)
	require.Equal(t, Stats{}, r.Stats())
}

func TestStrings(t *testing.T) {
	r := newTestRuntime(t)
	for _, s := range []string{"", "input", "tensor/卷积"} {
		p, err := r.CString(s)
		require.NoError(t, err)
		require.Equal(t, s, GoString(p))
		r.FreeCString(p)
	}
	require.Equal(t, "", GoString(0))
	require.Equal(t, 0, r.Stats().Strings)
}

func TestRegisterType(t *testing.T) {
	type weights struct {
		Data [4]float32
	}
	tag := RegisterType[weights]("weights")
	require.Equal(t, tag, RegisterType[weights]("weights"))
	require.Equal(t, tag, TagOf[weights]())
	require.Equal(t, "weights", tag.String())
	require.Equal(t, "invalid", InvalidTag.String())

	requirePanicCode(t, moerr.ErrNotSupported, func() { RegisterType[*point]("ptr") })
	requirePanicCode(t, moerr.ErrNotSupported, func() { RegisterType[string]("string") })
	requirePanicCode(t, moerr.ErrInvalidState, func() { TagOf[struct{ A uint16 }]() })

	require.True(t, IsPointerFree[[2]point]())
	require.False(t, IsPointerFree[[]point]())
}

func TestRuntimeClose(t *testing.T) {
	r, err := Open(Config{Name: t.Name()})
	require.NoError(t, err)
	h, err := r.NewVector(4, false)
	require.NoError(t, err)
	v := int32(7)
	VectorPushBack(h, unsafe.Pointer(&v))

	require.NoError(t, r.Close())
	require.True(t, moerr.IsMoErrCode(r.Close(), moerr.ErrInvalidState))

	_, err = r.NewBitVector()
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidState))
}

type recordingDeallocator struct {
	malloc.Deallocator
	hints *[]malloc.Hints
}

func (d recordingDeallocator) Deallocate(hints malloc.Hints) {
	*d.hints = append(*d.hints, hints)
	d.Deallocator.Deallocate(hints)
}

type recordingAllocator struct {
	upstream malloc.Allocator
	hints    []malloc.Hints
}

func (a *recordingAllocator) Allocate(size uint64, hints malloc.Hints) ([]byte, malloc.Deallocator, error) {
	buf, dec, err := a.upstream.Allocate(size, hints)
	if err != nil {
		return nil, nil, err
	}
	return buf, recordingDeallocator{Deallocator: dec, hints: &a.hints}, nil
}

func TestRuntimeCloseReleasesMemory(t *testing.T) {
	allocator := &recordingAllocator{upstream: malloc.NewClassAllocator(malloc.Config{})}
	r, err := Open(Config{Name: t.Name()}, WithAllocator(allocator))
	require.NoError(t, err)

	freed, err := r.NewVector(8, false)
	require.NoError(t, err)
	r.FreeVector(freed)
	require.Equal(t, []malloc.Hints{0}, allocator.hints)

	_, err = r.NewVector(8, false)
	require.NoError(t, err)
	_, err = r.NewBitVector()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, []malloc.Hints{0, malloc.DoNotReuse, malloc.DoNotReuse}, allocator.hints)
}

func TestRuntimeLookupAfterClose(t *testing.T) {
	r, err := Open(Config{Name: t.Name(), InitialCapacity: 1})
	require.NoError(t, err)
	id := r.id
	require.Same(t, r, lookup(id))
	require.NoError(t, r.Close())
	requirePanicCode(t, moerr.ErrInvalidState, func() { lookup(id) })
	requirePanicCode(t, moerr.ErrInvalidArg, func() { lookup(0) })
}

type failingAllocator struct {
	upstream malloc.Allocator
	left     int
}

func (f *failingAllocator) Allocate(size uint64, hints malloc.Hints) ([]byte, malloc.Deallocator, error) {
	if f.left == 0 {
		return nil, nil, moerr.NewOOMNoCtx()
	}
	f.left--
	return f.upstream.Allocate(size, hints)
}

func TestAllocationFailure(t *testing.T) {
	stubs := gostub.Stub(&newAllocator, func(cfg malloc.Config) malloc.Allocator {
		return &failingAllocator{upstream: malloc.NewClassAllocator(cfg), left: 1}
	})
	defer stubs.Reset()

	r := newTestRuntime(t)
	h, err := r.NewVector(8, false)
	require.NoError(t, err)

	_, err = r.NewVector(8, false)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))

	v := int64(1)
	requirePanicCode(t, moerr.ErrOOM, func() { VectorPushBack(h, unsafe.Pointer(&v)) })
	require.Equal(t, 0, VectorSize(h))
}

func TestRuntimeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := newTestRuntime(t,
		WithMetricsRegisterer(reg),
		WithAllocatorConfig(malloc.Config{EnableMetrics: true}),
	)

	h, err := r.NewVector(8, false)
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		VectorPushBack(h, unsafe.Pointer(&i))
	}
	// initial capacity 4, then 8
	require.Equal(t, float64(2), testutil.ToFloat64(r.metrics.vectorGrow))
	require.Equal(t, float64(2), testutil.ToFloat64(r.metrics.inuseObjects))
	require.Equal(t, float64(RawVectorSize+8*8), testutil.ToFloat64(r.metrics.inuseBytes))

	_, err = Open(Config{Name: t.Name()}, WithMetricsRegisterer(reg))
	require.Error(t, err)

	r.FreeVector(h)
	require.Equal(t, float64(0), testutil.ToFloat64(r.metrics.inuseBytes))
}

type bag struct {
	Items RawVector
	Flags RawBitVector
	Label uintptr
}

func TestEmbeddedVectorsAndDestructor(t *testing.T) {
	tag := RegisterType[bag]("bag")
	var destroyed int
	RegisterDestructor(func(r *Runtime, b *bag) {
		destroyed++
		VectorRelease(&b.Items)
		BitVectorRelease(&b.Flags)
		r.FreeCString(b.Label)
	})

	r := newTestRuntime(t)
	h, err := r.NewVector(uint32(UniquePtrSize), true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		obj, err := r.NewObject(tag, uint64(unsafe.Sizeof(bag{})))
		require.NoError(t, err)
		b := (*bag)(obj.Get())
		r.InitVector(&b.Items, 4, false)
		r.InitBitVector(&b.Flags)
		b.Label, err = r.CString("bag")
		require.NoError(t, err)
		for j := int32(0); j < 10; j++ {
			VectorPushBack(&b.Items, unsafe.Pointer(&j))
			BitVectorPushBack(&b.Flags, j%2 == 0)
		}
		VectorPushBack(h, unsafe.Pointer(&obj))
	}
	require.Equal(t, 3, r.Stats().Objects)
	require.Equal(t, 3, r.Stats().Strings)

	b := (*bag)(VectorResolveOwning(h, 2))
	require.Equal(t, 10, VectorSize(&b.Items))
	require.Equal(t, 5, BitVectorCount(&b.Flags))
	require.Equal(t, "bag", GoString(b.Label))

	VectorRelease(&b.Items)
	require.Equal(t, 0, VectorSize(&b.Items))
	v := int32(1)
	VectorPushBack(&b.Items, unsafe.Pointer(&v))
	require.Equal(t, 1, VectorSize(&b.Items))

	VectorErase(h, 0)
	require.Equal(t, 1, destroyed)
	r.FreeVector(h)
	require.Equal(t, 3, destroyed)
	require.Equal(t, Stats{}, r.Stats())
}
