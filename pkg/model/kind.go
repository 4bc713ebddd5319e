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

package model

import (
	"fmt"
	"reflect"

	"golang.org/x/exp/constraints"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

// ElementKind is the element type tag the runtime stores in every tensor.
type ElementKind int32

const (
	NoType     ElementKind = 0
	Float32    ElementKind = 1
	Int32      ElementKind = 2
	UInt8      ElementKind = 3
	Int64      ElementKind = 4
	String     ElementKind = 5
	Bool       ElementKind = 6
	Int16      ElementKind = 7
	Complex64  ElementKind = 8
	Int8       ElementKind = 9
	Float16    ElementKind = 10
	Float64    ElementKind = 11
	Complex128 ElementKind = 12
	UInt64     ElementKind = 13
	Resource   ElementKind = 14
	Variant    ElementKind = 15
	UInt32     ElementKind = 16
	UInt16     ElementKind = 17
)

var kindNames = [...]string{
	NoType:     "NoType",
	Float32:    "Float32",
	Int32:      "Int32",
	UInt8:      "UInt8",
	Int64:      "Int64",
	String:     "String",
	Bool:       "Bool",
	Int16:      "Int16",
	Complex64:  "Complex64",
	Int8:       "Int8",
	Float16:    "Float16",
	Float64:    "Float64",
	Complex128: "Complex128",
	UInt64:     "UInt64",
	Resource:   "Resource",
	Variant:    "Variant",
	UInt32:     "UInt32",
	UInt16:     "UInt16",
}

var kindSizes = [...]int{
	Float32:    4,
	Int32:      4,
	UInt8:      1,
	Int64:      8,
	Bool:       1,
	Int16:      2,
	Complex64:  8,
	Int8:       1,
	Float16:    2,
	Float64:    8,
	Complex128: 16,
	UInt64:     8,
	UInt32:     4,
	UInt16:     2,
}

func (k ElementKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ElementKind(%d)", int32(k))
}

// ByteSize is the size of one element, or 0 for kinds without a fixed size.
func (k ElementKind) ByteSize() int {
	if k >= 0 && int(k) < len(kindSizes) {
		return kindSizes[k]
	}
	return 0
}

type Numeric interface {
	constraints.Integer | constraints.Float | constraints.Complex
}

// ElemKindOf returns the kind of T. Platform sized integers have no kind.
func ElemKindOf[T Numeric]() ElementKind {
	switch t := reflect.TypeFor[T](); t.Kind() {
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Uint8:
		return UInt8
	case reflect.Uint16:
		return UInt16
	case reflect.Uint32:
		return UInt32
	case reflect.Uint64:
		return UInt64
	case reflect.Complex64:
		return Complex64
	case reflect.Complex128:
		return Complex128
	default:
		panic(moerr.NewNotSupportedNoCtx("element kind of %s", t))
	}
}
