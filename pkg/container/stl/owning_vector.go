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

// OwningVector is a vector of UniquePtr slots seen through their pointees.
// Every pointee is tag checked before it is handed out as a *T.
type OwningVector[T any] struct {
	Vector[native.UniquePtr]
	tag native.TypeTag
}

var _ Mutable[int64] = OwningVector[int64]{}

// WrapOwning views an owning vector as a vector of T. T must be registered
// with native.RegisterType.
func WrapOwning[T any](h *native.RawVector) OwningVector[T] {
	if h != nil && !native.VectorIsOwning(h) {
		panic(moerr.NewInvalidArgNoCtx("vector handle", "not an owning vector"))
	}
	return OwningVector[T]{
		Vector: Wrap[native.UniquePtr](h),
		tag:    native.TagOf[T](),
	}
}

// NewOwning creates an empty owning vector in rt. The caller frees it with
// rt.FreeVector, which also destroys the pointees.
func NewOwning[T any](rt *native.Runtime) (OwningVector[T], error) {
	h, err := rt.NewVector(uint32(native.UniquePtrSize), true)
	if err != nil {
		return OwningVector[T]{}, err
	}
	return WrapOwning[T](h), nil
}

// At borrows the pointee of slot i. It panics when the object is not a T.
func (v OwningVector[T]) At(i int) *T {
	checkIndex(i, v.Len())
	p := native.VectorResolveOwning(v.h, i)
	if got := native.ObjectTag(p); got != v.tag {
		panic(moerr.NewTypeMismatchNoCtx(v.tag.String(), got.String()))
	}
	return (*T)(p)
}

func (v OwningVector[T]) Get(i int) T {
	return *v.At(i)
}

func (v OwningVector[T]) Set(i int, x T) {
	*v.At(i) = x
}

func (v OwningVector[T]) All() iter.Seq2[int, *T] {
	return func(yield func(int, *T) bool) {
		n := v.Len()
		for i := 0; i < n; i++ {
			if !yield(i, v.At(i)) {
				return
			}
		}
	}
}

func (v OwningVector[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, x := range v.All() {
			if !yield(*x) {
				return
			}
		}
	}
}

func (v OwningVector[T]) String() string {
	var xs []T
	for x := range v.Values() {
		xs = append(xs, x)
	}
	return fmt.Sprint(xs)
}

// Emplace appends a zeroed T owned by the vector and returns it.
func (v OwningVector[T]) Emplace() *T {
	var zero T
	obj, err := native.VectorRuntime(v.h).NewObject(v.tag, uint64(unsafe.Sizeof(zero)))
	if err != nil {
		panic(err)
	}
	native.VectorPushBack(v.h, unsafe.Pointer(&obj))
	return (*T)(obj.Get())
}

// PushBack appends an owned copy of x.
func (v OwningVector[T]) PushBack(x T) {
	*v.Emplace() = x
}

// Retain keeps the pointees for which keep returns true. Dropped pointees
// are destroyed.
func (v OwningVector[T]) Retain(keep func(int, *T) bool) {
	var drop []int
	for i, x := range v.All() {
		if !keep(i, x) {
			drop = append(drop, i)
		}
	}
	eraseDescending(v.h, drop)
}

func (v OwningVector[T]) Assign(seq iter.Seq[T]) {
	v.Clear()
	for x := range seq {
		v.PushBack(x)
	}
}

func (v OwningVector[T]) AssignSlice(xs []T) {
	v.Clear()
	v.Reserve(len(xs))
	for _, x := range xs {
		v.PushBack(x)
	}
}
