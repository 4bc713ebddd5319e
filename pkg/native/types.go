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
	"reflect"
	"sync"
	"unsafe"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

// TypeTag identifies the concrete type of a runtime object.
type TypeTag uint32

const InvalidTag TypeTag = 0

var types struct {
	sync.RWMutex
	byType      map[reflect.Type]TypeTag
	names       []string
	destructors map[TypeTag]func(*Runtime, unsafe.Pointer)
}

func init() {
	types.byType = make(map[reflect.Type]TypeTag)
	types.names = []string{"invalid"}
	types.destructors = make(map[TypeTag]func(*Runtime, unsafe.Pointer))
}

// RegisterType assigns a tag to T. Registering the same type again returns
// its existing tag. T must not hold Go pointers.
func RegisterType[T any](name string) TypeTag {
	t := reflect.TypeFor[T]()
	if !pointerFree(t) {
		panic(moerr.NewNotSupportedNoCtx("type %s holds Go pointers", t))
	}
	types.Lock()
	defer types.Unlock()
	if tag, ok := types.byType[t]; ok {
		return tag
	}
	tag := TypeTag(len(types.names))
	types.names = append(types.names, name)
	types.byType[t] = tag
	return tag
}

// TagOf returns the tag registered for T and panics if there is none.
func TagOf[T any]() TypeTag {
	t := reflect.TypeFor[T]()
	types.RLock()
	tag, ok := types.byType[t]
	types.RUnlock()
	if !ok {
		panic(moerr.NewInvalidStateNoCtx("type %s is not registered", t))
	}
	return tag
}

// RegisterDestructor makes fn run before every object of type T is freed.
// fn releases what the object owns, typically embedded vectors and strings.
func RegisterDestructor[T any](fn func(*Runtime, *T)) {
	tag := TagOf[T]()
	types.Lock()
	defer types.Unlock()
	types.destructors[tag] = func(r *Runtime, p unsafe.Pointer) {
		fn(r, (*T)(p))
	}
}

func destructorOf(tag TypeTag) func(*Runtime, unsafe.Pointer) {
	types.RLock()
	defer types.RUnlock()
	return types.destructors[tag]
}

func (t TypeTag) String() string {
	types.RLock()
	defer types.RUnlock()
	if int(t) < len(types.names) {
		return types.names[t]
	}
	return "unknown"
}

// IsPointerFree reports whether T can be stored in runtime memory.
func IsPointerFree[T any]() bool {
	return pointerFree(reflect.TypeFor[T]())
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
