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
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matrixorigin/nativevec/pkg/common/malloc"
	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/logutil"
)

const maxRuntimes = 1 << 10

// Every handle records the id of the runtime that owns it, foreign calls
// find the runtime through this table.
var runtimes struct {
	sync.Mutex
	table [maxRuntimes]atomic.Pointer[Runtime]
}

func lookup(id uint16) *Runtime {
	if id == 0 || id >= maxRuntimes {
		panic(moerr.NewInvalidArgNoCtx("runtime id", id))
	}
	r := runtimes.table[id].Load()
	if r == nil {
		panic(moerr.NewInvalidStateNoCtx("runtime %d is closed", id))
	}
	return r
}

// Config holds the runtime settings.
type Config struct {
	// Name labels log entries and metrics of the runtime.
	Name string `toml:"name"`
	// InitialCapacity is the element capacity reserved by the first growth of a vector.
	InitialCapacity int `toml:"initial-capacity"`
}

const defaultInitialCapacity = 4

func (c *Config) adjust() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = defaultInitialCapacity
	}
}

// Option used to setup runtime
type Option func(*Runtime)

// WithAllocatorConfig sets the config of the default allocator.
func WithAllocatorConfig(cfg malloc.Config) Option {
	return func(r *Runtime) {
		r.allocatorConfig = cfg
	}
}

// WithAllocator replaces the default allocator.
func WithAllocator(allocator malloc.Allocator) Option {
	return func(r *Runtime) {
		r.allocator = allocator
	}
}

// WithMetricsRegisterer registers the runtime metrics to reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(r *Runtime) {
		r.registerer = reg
	}
}

var newAllocator = func(cfg malloc.Config) malloc.Allocator {
	return malloc.NewClassAllocator(cfg)
}

type blockKind uint8

const (
	blockVector blockKind = iota
	blockBitVector
	blockBuffer
	blockObject
	blockString
	numBlockKinds
)

var blockKindNames = [numBlockKinds]string{"vector", "bit vector", "buffer", "object", "string"}

func (k blockKind) String() string {
	return blockKindNames[k]
}

type block struct {
	kind blockKind
	size uint64
	dec  malloc.Deallocator
}

// Stats counts the live blocks of a runtime.
type Stats struct {
	Vectors    int
	BitVectors int
	Buffers    int
	Objects    int
	Strings    int
	// Bytes is the sum of the requested sizes of all live blocks.
	Bytes uint64
}

// Runtime owns every control block, buffer and object it hands out.
// The mutex guards the bookkeeping only. Containers are never locked,
// callers serialize mutations of a container themselves.
type Runtime struct {
	id              uint16
	cfg             Config
	allocatorConfig malloc.Config
	allocator       malloc.Allocator
	registerer      prometheus.Registerer
	metrics         *runtimeMetrics

	mu struct {
		sync.Mutex
		closed bool
		blocks map[uintptr]block
		counts [numBlockKinds]int
		bytes  uint64
	}
}

// Open starts a runtime and makes its handles reachable from foreign calls.
func Open(cfg Config, opts ...Option) (*Runtime, error) {
	cfg.adjust()
	r := &Runtime{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	r.mu.blocks = make(map[uintptr]block)

	if r.registerer != nil {
		r.metrics = newRuntimeMetrics(cfg.Name)
		if err := r.metrics.register(r.registerer); err != nil {
			return nil, err
		}
	}
	if r.allocator == nil {
		r.allocator = newAllocator(r.allocatorConfig)
	}
	if r.metrics != nil && r.allocatorConfig.EnableMetrics {
		r.allocator = malloc.NewMetricsAllocator(
			r.allocator,
			r.metrics.allocateBytes,
			r.metrics.inuseBytes,
			r.metrics.allocateObjects,
			r.metrics.inuseObjects,
		)
	}

	runtimes.Lock()
	for id := uint16(1); id < maxRuntimes; id++ {
		if runtimes.table[id].Load() == nil {
			r.id = id
			runtimes.table[id].Store(r)
			break
		}
	}
	runtimes.Unlock()
	if r.id == 0 {
		if r.metrics != nil {
			r.metrics.unregister(r.registerer)
		}
		return nil, moerr.NewInvalidStateNoCtx("too many runtimes, max %d", maxRuntimes-1)
	}

	logutil.Info("native: runtime opened",
		zap.String("runtime", cfg.Name),
		zap.Uint16("id", r.id),
		zap.Int("initial-capacity", cfg.InitialCapacity),
	)
	return r, nil
}

func (r *Runtime) Name() string {
	return r.cfg.Name
}

// Close releases everything the runtime still owns. Handles of a closed
// runtime must not be used again.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.mu.closed {
		r.mu.Unlock()
		return moerr.NewInvalidStateNoCtx("runtime %s already closed", r.cfg.Name)
	}
	r.mu.closed = true
	blocks := r.mu.blocks
	r.mu.blocks = nil
	r.mu.Unlock()

	runtimes.Lock()
	runtimes.table[r.id].Store(nil)
	runtimes.Unlock()

	if len(blocks) > 0 {
		logutil.Warn("native: runtime closed with live blocks",
			zap.String("runtime", r.cfg.Name),
			zap.Int("blocks", len(blocks)),
		)
	}
	// nothing allocates from a closed runtime again
	for _, b := range blocks {
		b.dec.Deallocate(malloc.DoNotReuse)
	}
	if r.metrics != nil {
		r.metrics.unregister(r.registerer)
	}
	logutil.Info("native: runtime closed", zap.String("runtime", r.cfg.Name))
	return nil
}

func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Vectors:    r.mu.counts[blockVector],
		BitVectors: r.mu.counts[blockBitVector],
		Buffers:    r.mu.counts[blockBuffer],
		Objects:    r.mu.counts[blockObject],
		Strings:    r.mu.counts[blockString],
		Bytes:      r.mu.bytes,
	}
}

// NewVector creates an empty vector of elemSize byte elements. An owning
// vector holds UniquePtr slots and destroys the pointee of every slot it erases.
func (r *Runtime) NewVector(elemSize uint32, owning bool) (*RawVector, error) {
	checkElemSize(elemSize, owning)
	addr, err := r.alloc(blockVector, RawVectorSize, 0)
	if err != nil {
		return nil, err
	}
	h := (*RawVector)(pointerAt(addr))
	r.InitVector(h, elemSize, owning)
	return h, nil
}

// InitVector sets up a control block embedded in other runtime memory, such
// as a field of an object. h must not hold elements. Embedded vectors are
// released with VectorRelease, never with FreeVector.
func (r *Runtime) InitVector(h *RawVector, elemSize uint32, owning bool) {
	checkElemSize(elemSize, owning)
	*h = RawVector{
		elemSize: elemSize,
		runtime:  r.id,
	}
	if owning {
		h.flags |= flagOwning
	}
}

func checkElemSize(elemSize uint32, owning bool) {
	if elemSize == 0 {
		panic(moerr.NewInvalidArgNoCtx("element size", elemSize))
	}
	if owning && uintptr(elemSize) != UniquePtrSize {
		panic(moerr.NewInvalidArgNoCtx("owning element size", elemSize))
	}
}

// FreeVector destroys the vector, its buffer and, for an owning vector,
// every object it still holds.
func (r *Runtime) FreeVector(h *RawVector) {
	VectorRelease(h)
	r.free(blockVector, uintptr(unsafe.Pointer(h)))
}

func (r *Runtime) NewBitVector() (*RawBitVector, error) {
	addr, err := r.alloc(blockBitVector, RawBitVectorSize, 0)
	if err != nil {
		return nil, err
	}
	h := (*RawBitVector)(pointerAt(addr))
	r.InitBitVector(h)
	return h, nil
}

// InitBitVector sets up an embedded bit vector control block.
func (r *Runtime) InitBitVector(h *RawBitVector) {
	*h = RawBitVector{runtime: r.id}
}

func (r *Runtime) FreeBitVector(h *RawBitVector) {
	BitVectorRelease(h)
	r.free(blockBitVector, uintptr(unsafe.Pointer(h)))
}

type objectHeader struct {
	tag     TypeTag
	runtime uint16
	_       uint16
	size    uint64
}

const objectHeaderSize = unsafe.Sizeof(objectHeader{})

func headerOf(p unsafe.Pointer) *objectHeader {
	return (*objectHeader)(unsafe.Add(p, -int(objectHeaderSize)))
}

// NewObject allocates a zeroed object of size bytes tagged with tag.
func (r *Runtime) NewObject(tag TypeTag, size uint64) (UniquePtr, error) {
	if tag == InvalidTag {
		panic(moerr.NewInvalidArgNoCtx("type tag", tag))
	}
	addr, err := r.alloc(blockObject, uint64(objectHeaderSize)+size, 0)
	if err != nil {
		return UniquePtr{}, err
	}
	header := (*objectHeader)(pointerAt(addr))
	header.tag = tag
	header.runtime = r.id
	header.size = size
	return UniquePtr{addr: addr + objectHeaderSize}, nil
}

// FreeObject runs the destructor registered for the object type, then
// releases the object.
func (r *Runtime) FreeObject(p UniquePtr) {
	if p.IsNil() {
		return
	}
	if fn := destructorOf(headerOf(p.Get()).tag); fn != nil {
		fn(r, p.Get())
	}
	r.free(blockObject, p.addr-objectHeaderSize)
}

// ObjectTag returns the type tag of a runtime object.
func ObjectTag(p unsafe.Pointer) TypeTag {
	return headerOf(p).tag
}

func freeObject(p UniquePtr) {
	lookup(headerOf(p.Get()).runtime).FreeObject(p)
}

// CString copies s into runtime memory as a null-terminated string.
func (r *Runtime) CString(s string) (uintptr, error) {
	addr, err := r.alloc(blockString, uint64(len(s))+1, malloc.NoClear)
	if err != nil {
		return 0, err
	}
	buf := bytesAt(addr, uintptr(len(s))+1)
	copy(buf, s)
	buf[len(s)] = 0
	return addr, nil
}

func (r *Runtime) FreeCString(p uintptr) {
	if p != 0 {
		r.free(blockString, p)
	}
}

// GoString copies a null-terminated runtime string.
func GoString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := uintptr(0)
	for *(*byte)(pointerAt(p + n)) != 0 {
		n++
	}
	return string(bytesAt(p, n))
}

func (r *Runtime) alloc(kind blockKind, size uint64, hints malloc.Hints) (uintptr, error) {
	buf, dec, err := r.allocator.Allocate(size, hints)
	if err != nil {
		logutil.Error("native: allocation failed",
			zap.String("runtime", r.cfg.Name),
			zap.Stringer("kind", kind),
			zap.Uint64("size", size),
			zap.Error(err),
		)
		return 0, err
	}
	addr := addressOf(buf)

	r.mu.Lock()
	if r.mu.closed {
		r.mu.Unlock()
		dec.Deallocate(malloc.DoNotReuse)
		return 0, moerr.NewInvalidStateNoCtx("runtime %s is closed", r.cfg.Name)
	}
	r.mu.blocks[addr] = block{kind: kind, size: size, dec: dec}
	r.mu.counts[kind]++
	r.mu.bytes += size
	r.mu.Unlock()
	return addr, nil
}

// mustAlloc backs foreign calls, which have no error path.
func (r *Runtime) mustAlloc(kind blockKind, size uint64, hints malloc.Hints) uintptr {
	addr, err := r.alloc(kind, size, hints)
	if err != nil {
		panic(moerr.NewOOMNoCtx())
	}
	return addr
}

func (r *Runtime) free(kind blockKind, addr uintptr) {
	r.mu.Lock()
	b, ok := r.mu.blocks[addr]
	if !ok || b.kind != kind {
		r.mu.Unlock()
		panic(moerr.NewInvalidStateNoCtx("free of unknown %s block %#x", kind, addr))
	}
	delete(r.mu.blocks, addr)
	r.mu.counts[kind]--
	r.mu.bytes -= b.size
	r.mu.Unlock()
	b.dec.Deallocate(0)
}
