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

package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/matrixorigin/nativevec/pkg/model"
	"github.com/matrixorigin/nativevec/pkg/native"
)

const (
	builtinFullyConnected = 9
	builtinRelu           = 19
	builtinCustom         = 32
	width                 = 8
)

// buildDemoModel builds a chain of fully connected layers with a stateful
// custom operator at the end, plus one dangling scratch tensor per layer.
func buildDemoModel(rt *native.Runtime, layers int) (*model.Model, error) {
	b, err := model.NewBuilder(rt, fmt.Sprintf("demo mlp, %d layers", layers))
	if err != nil {
		return nil, err
	}
	m, err := buildLayers(b, layers)
	if err != nil {
		b.Discard()
		return nil, err
	}
	return m, nil
}

func buildLayers(b *model.Builder, layers int) (*model.Model, error) {
	fc, err := b.AddOperatorCode(builtinFullyConnected, 1, "")
	if err != nil {
		return nil, err
	}
	relu, err := b.AddOperatorCode(builtinRelu, 1, "")
	if err != nil {
		return nil, err
	}
	accumulate, err := b.AddOperatorCode(builtinCustom, 1, "ACCUMULATE")
	if err != nil {
		return nil, err
	}

	kind := model.ElemKindOf[float32]()
	shape := []int32{1, width}
	input, err := b.AddTensor(model.TensorSpec{Name: "input", Kind: kind, Shape: shape})
	if err != nil {
		return nil, err
	}
	prev := input
	for i := 0; i < layers; i++ {
		weights, err := b.AddTensor(model.TensorSpec{
			Name:   fmt.Sprintf("dense_%d/weights", i),
			Kind:   kind,
			Shape:  []int32{width, width},
			Buffer: b.AddBuffer(identity(width)),
		})
		if err != nil {
			return nil, err
		}
		if _, err := b.AddTensor(model.TensorSpec{
			Name:  fmt.Sprintf("dense_%d/scratch", i),
			Kind:  model.ElemKindOf[int8](),
			Shape: []int32{width},
		}); err != nil {
			return nil, err
		}
		hidden, err := b.AddTensor(model.TensorSpec{Name: fmt.Sprintf("dense_%d/out", i), Kind: kind, Shape: shape})
		if err != nil {
			return nil, err
		}
		activated, err := b.AddTensor(model.TensorSpec{Name: fmt.Sprintf("dense_%d/relu", i), Kind: kind, Shape: shape})
		if err != nil {
			return nil, err
		}
		if err := b.AddOperator(fc, []int32{prev, weights, -1}, []int32{hidden}); err != nil {
			return nil, err
		}
		if err := b.AddOperator(relu, []int32{hidden}, []int32{activated}); err != nil {
			return nil, err
		}
		prev = activated
	}

	state, err := b.AddTensor(model.TensorSpec{Name: "state", Kind: kind, Shape: shape, Variable: true})
	if err != nil {
		return nil, err
	}
	output, err := b.AddTensor(model.TensorSpec{Name: "output", Kind: kind, Shape: shape})
	if err != nil {
		return nil, err
	}
	if err := b.AddOperator(accumulate, []int32{state, prev}, []int32{output}); err != nil {
		return nil, err
	}
	if err := b.SetInputs(input); err != nil {
		return nil, err
	}
	if err := b.SetOutputs(output); err != nil {
		return nil, err
	}
	return b.Finish(), nil
}

// identity encodes an n by n float32 identity matrix.
func identity(n int) []byte {
	data := make([]byte, n*n*4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[(i*n+i)*4:], math.Float32bits(1))
	}
	return data
}
