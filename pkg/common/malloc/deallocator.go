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

import "sync"

type Args interface {
	As(Trait) bool
}

// ClosureDeallocator runs fn over args once, then returns itself to its pool.
type ClosureDeallocator[T any, P interface {
	*T
	Args
}] struct {
	args T
	fn   func(Hints, P)
	pool *ClosureDeallocatorPool[T, P]
}

var _ Deallocator = new(ClosureDeallocator[MmapInfo, *MmapInfo])

func (c *ClosureDeallocator[T, P]) Deallocate(hints Hints) {
	c.fn(hints, &c.args)
	c.pool.pool.Put(c)
}

func (c *ClosureDeallocator[T, P]) As(trait Trait) bool {
	return P(&c.args).As(trait)
}

type ClosureDeallocatorPool[T any, P interface {
	*T
	Args
}] struct {
	pool sync.Pool
}

func NewClosureDeallocatorPool[T any, P interface {
	*T
	Args
}](
	deallocateFunc func(Hints, P),
) *ClosureDeallocatorPool[T, P] {
	ret := new(ClosureDeallocatorPool[T, P])
	ret.pool.New = func() any {
		return &ClosureDeallocator[T, P]{
			fn:   deallocateFunc,
			pool: ret,
		}
	}
	return ret
}

func (c *ClosureDeallocatorPool[T, P]) Get(args T) Deallocator {
	closure := c.pool.Get().(*ClosureDeallocator[T, P])
	closure.args = args
	return closure
}

type chainDeallocator []Deallocator

// ChainDeallocator runs the given deallocators in order.
func ChainDeallocator(dec1 Deallocator, dec2 Deallocator) Deallocator {
	return chainDeallocator{dec1, dec2}
}

func (c chainDeallocator) Deallocate(hints Hints) {
	for _, dec := range c {
		dec.Deallocate(hints)
	}
}

func (c chainDeallocator) As(trait Trait) bool {
	for _, dec := range c {
		if dec.As(trait) {
			return true
		}
	}
	return false
}

type noopDeallocator struct{}

func (noopDeallocator) Deallocate(Hints) {}

func (noopDeallocator) As(Trait) bool {
	return false
}

func (m *MmapInfo) As(trait Trait) bool {
	if info, ok := trait.(*MmapInfo); ok {
		*info = *m
		return true
	}
	return false
}
