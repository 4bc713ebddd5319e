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

// Package model reads and edits inference models whose records live in
// runtime memory. Every record is reached through the containers of
// package stl.
package model

import (
	"unsafe"

	"github.com/matrixorigin/nativevec/pkg/container/stl"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// OperatorCode names the kernel an operator runs.
type OperatorCode struct {
	builtinCode int32
	version     int32
	customCode  uintptr
}

// Buffer holds constant tensor data.
type Buffer struct {
	data native.RawVector
}

type Tensor struct {
	shape      native.RawVector
	kind       ElementKind
	buffer     uint32
	name       uintptr
	isVariable bool
}

type Operator struct {
	opcodeIndex            uint32
	inputs                 native.RawVector
	outputs                native.RawVector
	mutatingVariableInputs native.RawBitVector
}

// Graph is one subgraph. Tensor indices of operators and of the graph
// inputs and outputs refer to its tensors, -1 marks an omitted optional input.
type Graph struct {
	tensors   native.RawVector
	inputs    native.RawVector
	outputs   native.RawVector
	operators native.RawVector
	name      uintptr
}

type modelRoot struct {
	operatorCodes native.RawVector
	subgraphs     native.RawVector
	buffers       native.RawVector
	description   uintptr
	version       uint32
}

const int32Size = uint32(unsafe.Sizeof(int32(0)))

var (
	operatorCodeTag = native.RegisterType[OperatorCode]("OperatorCode")
	bufferTag       = native.RegisterType[Buffer]("Buffer")
	tensorTag       = native.RegisterType[Tensor]("Tensor")
	operatorTag     = native.RegisterType[Operator]("Operator")
	graphTag        = native.RegisterType[Graph]("Graph")
	modelTag        = native.RegisterType[modelRoot]("Model")
)

func init() {
	native.RegisterDestructor(func(rt *native.Runtime, c *OperatorCode) {
		rt.FreeCString(c.customCode)
	})
	native.RegisterDestructor(func(_ *native.Runtime, b *Buffer) {
		native.VectorRelease(&b.data)
	})
	native.RegisterDestructor(func(rt *native.Runtime, t *Tensor) {
		native.VectorRelease(&t.shape)
		rt.FreeCString(t.name)
	})
	native.RegisterDestructor(func(_ *native.Runtime, op *Operator) {
		native.VectorRelease(&op.inputs)
		native.VectorRelease(&op.outputs)
		native.BitVectorRelease(&op.mutatingVariableInputs)
	})
	native.RegisterDestructor(func(rt *native.Runtime, g *Graph) {
		native.VectorRelease(&g.tensors)
		native.VectorRelease(&g.inputs)
		native.VectorRelease(&g.outputs)
		native.VectorRelease(&g.operators)
		rt.FreeCString(g.name)
	})
	native.RegisterDestructor(func(rt *native.Runtime, m *modelRoot) {
		native.VectorRelease(&m.operatorCodes)
		native.VectorRelease(&m.subgraphs)
		native.VectorRelease(&m.buffers)
		rt.FreeCString(m.description)
	})
}

func (c *OperatorCode) BuiltinCode() int32 {
	return c.builtinCode
}

func (c *OperatorCode) Version() int32 {
	return c.version
}

// CustomCode is empty for builtin operators.
func (c *OperatorCode) CustomCode() string {
	return native.GoString(c.customCode)
}

func (b *Buffer) Data() stl.Vector[uint8] {
	return stl.Wrap[uint8](&b.data)
}

func (t *Tensor) Info() TensorInfo {
	return TensorInfo{t: t}
}

func (t *Tensor) BufferIndex() uint32 {
	return t.buffer
}

func (t *Tensor) IsVariable() bool {
	return t.isVariable
}

func (op *Operator) OpcodeIndex() uint32 {
	return op.opcodeIndex
}

func (op *Operator) Inputs() stl.Vector[int32] {
	return stl.Wrap[int32](&op.inputs)
}

func (op *Operator) Outputs() stl.Vector[int32] {
	return stl.Wrap[int32](&op.outputs)
}

// MutatingVariableInputs has one bit per input, set when the operator
// writes to that variable tensor.
func (op *Operator) MutatingVariableInputs() stl.BoolVector {
	return stl.WrapBool(&op.mutatingVariableInputs)
}

func (g *Graph) Name() string {
	return native.GoString(g.name)
}

func (g *Graph) Tensors() stl.OwningVector[Tensor] {
	return stl.WrapOwning[Tensor](&g.tensors)
}

func (g *Graph) Operators() stl.OwningVector[Operator] {
	return stl.WrapOwning[Operator](&g.operators)
}

func (g *Graph) Inputs() stl.Vector[int32] {
	return stl.Wrap[int32](&g.inputs)
}

func (g *Graph) Outputs() stl.Vector[int32] {
	return stl.Wrap[int32](&g.outputs)
}
