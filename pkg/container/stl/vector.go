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

package stl

import (
	"fmt"
	"iter"
	"unsafe"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// Vector is a typed view of a runtime vector.
type Vector[T any] struct {
	h *native.RawVector
}

var _ Mutable[int64] = Vector[int64]{}

// Wrap views h as a vector of T. The size of T must equal the element size
// of h.
func Wrap[T any](h *native.RawVector) Vector[T] {
	if h == nil {
		panic(moerr.NewInvalidArgNoCtx("vector handle", "nil"))
	}
	var zero T
	if size := native.VectorElemSize(h); uintptr(size) != unsafe.Sizeof(zero) {
		panic(moerr.NewSizeNotMatchNoCtx("%T is %d bytes, vector elements are %d bytes", zero, unsafe.Sizeof(zero), size))
	}
	if !native.IsPointerFree[T]() {
		panic(moerr.NewNotSupportedNoCtx("element type %T holds Go pointers", zero))
	}
	return Vector[T]{h: h}
}

// New creates an empty vector in rt. The caller frees it with rt.FreeVector.
func New[T any](rt *native.Runtime) (Vector[T], error) {
	var zero T
	h, err := rt.NewVector(uint32(unsafe.Sizeof(zero)), false)
	if err != nil {
		return Vector[T]{}, err
	}
	return Wrap[T](h), nil
}

func (v Vector[T]) Handle() *native.RawVector {
	return v.h
}

func (v Vector[T]) Len() int {
	return native.VectorSize(v.h)
}

func (v Vector[T]) Cap() int {
	return native.VectorCapacity(v.h)
}

// Data returns the first element and the length.
func (v Vector[T]) Data() (*T, int) {
	return (*T)(native.VectorData(v.h)), native.VectorSize(v.h)
}

// Slice aliases the buffer of the vector.
func (v Vector[T]) Slice() []T {
	ptr, n := v.Data()
	if n == 0 {
		return nil
	}
	return unsafe.Slice(ptr, n)
}

func (v Vector[T]) At(i int) *T {
	checkIndex(i, v.Len())
	return &v.Slice()[i]
}

func (v Vector[T]) Get(i int) T {
	return *v.At(i)
}

func (v Vector[T]) Set(i int, x T) {
	*v.At(i) = x
}

func (v Vector[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		s := v.Slice()
		for i := range s {
			if !yield(i, &s[i]) {
				return
			}
		}
	}
}

func (v Vector[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, x := range v.Slice() {
			if !yield(x) {
				return
			}
		}
	}
}

func (v Vector[T]) String() string {
	return fmt.Sprint(v.Slice())
}

// EraseRange removes n elements starting at offset. Elements go one by one
// from the back so that pending indices keep their meaning.
func (v Vector[T]) EraseRange(offset, n int) {
	checkRange(offset, n, v.Len())
	for i := offset + n - 1; i >= offset; i-- {
		native.VectorErase(v.h, i)
	}
}

func (v Vector[T]) Erase(i int) {
	v.EraseRange(i, 1)
}

func (v Vector[T]) PopBack() {
	n := v.Len()
	if n == 0 {
		panic(moerr.NewEmptyVectorNoCtx())
	}
	native.VectorErase(v.h, n-1)
}

func (v Vector[T]) Clear() {
	v.EraseRange(0, v.Len())
}

// Truncate keeps the first n elements.
func (v Vector[T]) Truncate(n int) {
	size := v.Len()
	if n < 0 || n > size {
		panic(moerr.NewOutOfRangeNoCtx("vector", "truncate to %d, size %d", n, size))
	}
	v.EraseRange(n, size-n)
}

// Retain keeps the elements for which keep returns true, in order.
func (v Vector[T]) Retain(keep func(int, *T) bool) {
	var drop []int
	for i, x := range v.All() {
		if !keep(i, x) {
			drop = append(drop, i)
		}
	}
	eraseDescending(v.h, drop)
}

func (v Vector[T]) PushBack(x T) {
	native.VectorPushBack(v.h, unsafe.Pointer(&x))
}

// Assign replaces the content with seq.
func (v Vector[T]) Assign(seq iter.Seq[T]) {
	v.Clear()
	for x := range seq {
		v.PushBack(x)
	}
}

func (v Vector[T]) AssignSlice(xs []T) {
	v.Clear()
	v.Reserve(len(xs))
	for _, x := range xs {
		v.PushBack(x)
	}
}

func (v Vector[T]) Reserve(n int) {
	native.VectorReserve(v.h, n)
}

func eraseDescending(h *native.RawVector, indices []int) {
	for i := len(indices) - 1; i >= 0; i-- {
		native.VectorErase(h, indices[i])
	}
}

func checkIndex(i, n int) {
	if i < 0 || i >= n {
		panic(moerr.NewOutOfRangeNoCtx("vector", "index %d, size %d", i, n))
	}
}

func checkRange(offset, n, size int) {
	if offset < 0 || n < 0 || offset > size || n > size-offset {
		panic(moerr.NewOutOfRangeNoCtx("vector", "range offset %d, length %d, size %d", offset, n, size))
	}
}
