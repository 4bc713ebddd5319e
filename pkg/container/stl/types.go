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

// Package stl adapts runtime-owned containers to typed Go sequences without
// copying them. Wrappers never own the container they wrap, and nothing
// here takes a lock: callers serialize mutations of a container, and any
// slice or pointer obtained from a wrapper is invalid after a mutation.
package stl

import "iter"

// View is read and write access to the elements of a container.
type View[T any] interface {
	Len() int
	At(i int) *T
	Get(i int) T
	All() iter.Seq2[int, *T]
	Values() iter.Seq[T]
}

// Remover is the structural removal shared by every container.
type Remover interface {
	Len() int
	EraseRange(offset, n int)
	Erase(i int)
	PopBack()
	Clear()
	Truncate(n int)
}

type Mutable[T any] interface {
	View[T]
	Remover
	Set(i int, x T)
	PushBack(x T)
	Retain(keep func(int, *T) bool)
	Assign(seq iter.Seq[T])
}
