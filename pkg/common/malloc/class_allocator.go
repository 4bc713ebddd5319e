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

package malloc

import (
	"math/bits"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/matrixorigin/nativevec/pkg/logutil"
)

const (
	minClassSize = 16
	maxClassSize = 256 * KB
)

// ClassAllocator serves requests up to maxClassSize from power-of-two
// fixed size allocators, and gives larger requests a mapping of their own.
type ClassAllocator struct {
	classes              []fixedSizeClass
	largeDeallocatorPool *ClosureDeallocatorPool[largeMmapDeallocatorArgs, *largeMmapDeallocatorArgs]
}

type fixedSizeClass struct {
	size      uint64
	allocator *fixedSizeMmapAllocator
}

type largeMmapDeallocatorArgs struct {
	ptr    unsafe.Pointer
	length uint64
}

func (l *largeMmapDeallocatorArgs) As(trait Trait) bool {
	if info, ok := trait.(*MmapInfo); ok {
		info.Addr = uintptr(l.ptr)
		info.Length = l.length
		return true
	}
	return false
}

func NewClassAllocator(cfg Config) *ClassAllocator {
	ret := &ClassAllocator{
		largeDeallocatorPool: NewClosureDeallocatorPool(
			func(hints Hints, args *largeMmapDeallocatorArgs) {
				if err := unix.Munmap(unsafe.Slice((*byte)(args.ptr), args.length)); err != nil {
					panic(err)
				}
			},
		),
	}
	for size := uint64(minClassSize); size <= maxClassSize; size *= 2 {
		ret.classes = append(ret.classes, fixedSizeClass{
			size:      size,
			allocator: NewFixedSizeMmapAllocator(size, cfg),
		})
	}
	return ret
}

var _ Allocator = new(ClassAllocator)

func (c *ClassAllocator) Allocate(size uint64, hints Hints) ([]byte, Deallocator, error) {
	if size == 0 {
		return nil, noopDeallocator{}, nil
	}
	if size > maxClassSize {
		return c.allocateLarge(size)
	}
	class := requestSizeToClass(size)
	slice, dec, err := c.classes[class].allocator.Allocate(hints, size)
	if err != nil {
		return nil, nil, err
	}
	return slice[:size], dec, nil
}

func (c *ClassAllocator) allocateLarge(size uint64) ([]byte, Deallocator, error) {
	pageSize := uint64(unix.Getpagesize())
	length := (size + pageSize - 1) / pageSize * pageSize
	slice, err := unix.Mmap(
		-1, 0,
		int(length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, nil, err
	}
	logutil.Debug("malloc: large mapping", zap.Uint64("size", size), zap.Uint64("length", length))
	// fresh anonymous mappings are zeroed, hints need no handling
	return slice[:size], c.largeDeallocatorPool.Get(largeMmapDeallocatorArgs{
		ptr:    unsafe.Pointer(unsafe.SliceData(slice)),
		length: length,
	}), nil
}

// ClassSizeOf returns the number of bytes actually reserved for a request of size bytes.
func ClassSizeOf(size uint64) uint64 {
	if size > maxClassSize {
		pageSize := uint64(unix.Getpagesize())
		return (size + pageSize - 1) / pageSize * pageSize
	}
	return minClassSize << requestSizeToClass(size)
}

func requestSizeToClass(size uint64) int {
	if size <= minClassSize {
		return 0
	}
	return bits.Len64(size-1) - bits.Len64(minClassSize-1)
}
