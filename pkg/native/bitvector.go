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
	"math/bits"
	"unsafe"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

// The BitVector* functions are the foreign calls of RawBitVector. Bits past
// the size are always zero.

func BitVectorSize(h *RawBitVector) int {
	return int(h.nbits)
}

func BitVectorGet(h *RawBitVector, i int) bool {
	checkBit(h, i)
	return wordsOf(h)[i>>6]&(1<<(i&63)) != 0
}

func BitVectorSet(h *RawBitVector, i int, v bool) {
	checkBit(h, i)
	words := wordsOf(h)
	if v {
		words[i>>6] |= 1 << (i & 63)
	} else {
		words[i>>6] &^= 1 << (i & 63)
	}
}

func BitVectorPushBack(h *RawBitVector, v bool) {
	if h.nbits == h.capWords*64 {
		lookup(h.runtime).growBitVector(h, max(2*h.capWords, 1))
	}
	h.nbits++
	BitVectorSet(h, int(h.nbits-1), v)
}

// BitVectorResize sets the size to n. New bits are false.
func BitVectorResize(h *RawBitVector, n int) {
	if n < 0 {
		panic(moerr.NewInvalidArgNoCtx("bit vector size", n))
	}
	size := uint64(n)
	if need := (size + 63) / 64; need > h.capWords {
		lookup(h.runtime).growBitVector(h, need)
	}
	if size < h.nbits {
		words := wordsOf(h)
		used := (h.nbits + 63) / 64
		if size&63 != 0 {
			words[size>>6] &= 1<<(size&63) - 1
		}
		clear(words[(size+63)/64 : used])
	}
	h.nbits = size
}

// BitVectorCount returns the number of true bits.
func BitVectorCount(h *RawBitVector) int {
	n := 0
	for _, w := range wordsOf(h)[:(h.nbits+63)/64] {
		n += bits.OnesCount64(w)
	}
	return n
}

// BitVectorRelease frees the words of h and leaves it empty.
func BitVectorRelease(h *RawBitVector) {
	if h.words != 0 {
		lookup(h.runtime).free(blockBuffer, h.words)
	}
	h.words, h.nbits, h.capWords = 0, 0, 0
}

func checkBit(h *RawBitVector, i int) {
	if i < 0 || uint64(i) >= h.nbits {
		panic(moerr.NewOutOfRangeNoCtx("bit vector", "index %d, size %d", i, h.nbits))
	}
}

func wordsOf(h *RawBitVector) []uint64 {
	if h.capWords == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(pointerAt(h.words)), h.capWords)
}

func (r *Runtime) growBitVector(h *RawBitVector, capWords uint64) {
	// fresh words come zeroed
	addr := r.mustAlloc(blockBuffer, capWords*8, 0)
	copy(unsafe.Slice((*uint64)(pointerAt(addr)), capWords), wordsOf(h))
	if h.words != 0 {
		r.free(blockBuffer, h.words)
	}
	h.words = addr
	h.capWords = capWords
	r.metrics.onGrow()
}
