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

// Package malloc allocates memory outside the Go heap.
//
// Memory returned by an Allocator is never scanned or freed by the Go
// garbage collector. It must be released through the Deallocator returned
// with it, exactly once. Go pointers must never be stored in it.
package malloc

const (
	B  = 1
	KB = 1024 * B
	MB = 1024 * KB
	GB = 1024 * MB
)

type Hints uint64

const (
	// NoClear skips zeroing the returned memory.
	NoClear Hints = 1 << iota
	// DoNotReuse releases the backing pages on deallocation instead of caching them.
	DoNotReuse
)

type Allocator interface {
	Allocate(size uint64, hints Hints) ([]byte, Deallocator, error)
}

type FixedSizeAllocator interface {
	Allocate(hints Hints, clearSize uint64) ([]byte, Deallocator, error)
}

type Deallocator interface {
	Deallocate(hints Hints)
	As(Trait) bool
}

// Trait is extra information a Deallocator may expose through As.
type Trait interface {
	IsTrait()
}

// MmapInfo describes the mapping backing an allocation.
type MmapInfo struct {
	Addr   uintptr
	Length uint64
}

func (*MmapInfo) IsTrait() {}

// Config holds the allocator settings.
type Config struct {
	// MaxActiveSlabs caps the slabs kept mapped and backed per size class.
	MaxActiveSlabs int `toml:"max-active-slabs"`
	// MaxStandbySlabs caps the slabs kept mapped without physical memory per size class.
	MaxStandbySlabs int `toml:"max-standby-slabs"`
	// EnableMetrics wraps the allocator with prometheus counters.
	EnableMetrics bool `toml:"enable-metrics"`
}

func (c *Config) adjust() {
	if c.MaxActiveSlabs <= 0 {
		c.MaxActiveSlabs = DefaultMaxActiveSlabs
	}
	if c.MaxStandbySlabs <= 0 {
		c.MaxStandbySlabs = DefaultMaxStandbySlabs
	}
}
