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
	"iter"
	"strings"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// BoolVector wraps a packed bit vector. Bits have no address, so there is
// no pointer or slice access.
type BoolVector struct {
	h *native.RawBitVector
}

var _ Remover = BoolVector{}

func WrapBool(h *native.RawBitVector) BoolVector {
	if h == nil {
		panic(moerr.NewInvalidArgNoCtx("bit vector handle", "nil"))
	}
	return BoolVector{h: h}
}

// NewBool creates an empty bit vector in rt. The caller frees it with
// rt.FreeBitVector.
func NewBool(rt *native.Runtime) (BoolVector, error) {
	h, err := rt.NewBitVector()
	if err != nil {
		return BoolVector{}, err
	}
	return WrapBool(h), nil
}

func (v BoolVector) Handle() *native.RawBitVector {
	return v.h
}

func (v BoolVector) Len() int {
	return native.BitVectorSize(v.h)
}

func (v BoolVector) Get(i int) bool {
	checkIndex(i, v.Len())
	return native.BitVectorGet(v.h, i)
}

func (v BoolVector) Set(i int, b bool) {
	checkIndex(i, v.Len())
	native.BitVectorSet(v.h, i, b)
}

func (v BoolVector) PushBack(b bool) {
	native.BitVectorPushBack(v.h, b)
}

// Resize grows with false bits or drops trailing bits.
func (v BoolVector) Resize(n int) {
	if n < 0 {
		panic(moerr.NewInvalidArgNoCtx("size", n))
	}
	native.BitVectorResize(v.h, n)
}

// Count returns the number of true bits.
func (v BoolVector) Count() int {
	return native.BitVectorCount(v.h)
}

func (v BoolVector) All() iter.Seq2[int, bool] {
	return func(yield func(int, bool) bool) {
		n := v.Len()
		for i := 0; i < n; i++ {
			if !yield(i, native.BitVectorGet(v.h, i)) {
				return
			}
		}
	}
}

func (v BoolVector) EraseRange(offset, n int) {
	size := v.Len()
	checkRange(offset, n, size)
	for i := offset + n; i < size; i++ {
		native.BitVectorSet(v.h, i-n, native.BitVectorGet(v.h, i))
	}
	native.BitVectorResize(v.h, size-n)
}

func (v BoolVector) Erase(i int) {
	v.EraseRange(i, 1)
}

func (v BoolVector) PopBack() {
	n := v.Len()
	if n == 0 {
		panic(moerr.NewEmptyVectorNoCtx())
	}
	native.BitVectorResize(v.h, n-1)
}

func (v BoolVector) Clear() {
	native.BitVectorResize(v.h, 0)
}

func (v BoolVector) Truncate(n int) {
	size := v.Len()
	if n < 0 || n > size {
		panic(moerr.NewOutOfRangeNoCtx("bit vector", "truncate to %d, size %d", n, size))
	}
	native.BitVectorResize(v.h, n)
}

// String renders the bits as 0 and 1, first bit first.
func (v BoolVector) String() string {
	var sb strings.Builder
	for _, b := range v.All() {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
