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
	"iter"
	"unicode/utf8"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/container/stl"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// TensorInfo reads the metadata of a tensor. It borrows the tensor and is
// invalid once the tensor is erased from its graph.
type TensorInfo struct {
	t *Tensor
}

// Name panics when the stored name is not valid UTF-8.
func (ti TensorInfo) Name() string {
	name := native.GoString(ti.t.name)
	if !utf8.ValidString(name) {
		panic(moerr.NewInvalidInputNoCtx("tensor name %q is not valid UTF-8", name))
	}
	return name
}

func (ti TensorInfo) ElementKind() ElementKind {
	return ti.t.kind
}

func (ti TensorInfo) Shape() stl.Vector[int32] {
	return stl.Wrap[int32](&ti.t.shape)
}

// NumElements is the product of the dimensions.
func (ti TensorInfo) NumElements() int {
	n := 1
	for d := range ti.Shape().Values() {
		n *= int(d)
	}
	return n
}

func (ti TensorInfo) String() string {
	return fmt.Sprintf("TensorInfo{Name: %q, ElementKind: %s, Shape: %s}",
		ti.Name(), ti.ElementKind(), ti.Shape())
}

func (g *Graph) TensorInfos() iter.Seq2[int, TensorInfo] {
	return func(yield func(int, TensorInfo) bool) {
		for i, t := range g.Tensors().All() {
			if !yield(i, t.Info()) {
				return
			}
		}
	}
}
