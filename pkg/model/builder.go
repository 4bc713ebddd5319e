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
	"unsafe"

	"go.uber.org/zap"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/container/stl"
	"github.com/matrixorigin/nativevec/pkg/logutil"
	"github.com/matrixorigin/nativevec/pkg/native"
)

const SchemaVersion = 3

// TensorSpec describes a tensor to add.
type TensorSpec struct {
	Name  string
	Kind  ElementKind
	Shape []int32
	// Buffer indexes Model.Buffers. Buffer 0 is the empty buffer.
	Buffer   uint32
	Variable bool
}

// Builder assembles a model in runtime memory. Tensors and operators go to
// the current subgraph, which is the latest one added.
type Builder struct {
	model *Model
	graph *Graph
}

// NewBuilder starts a model holding the empty buffer and one subgraph
// named "main".
func NewBuilder(rt *native.Runtime, description string) (*Builder, error) {
	root, err := rt.NewObject(modelTag, uint64(unsafe.Sizeof(modelRoot{})))
	if err != nil {
		return nil, err
	}
	b := &Builder{model: &Model{rt: rt, root: root}}
	m := b.model.data()
	m.version = SchemaVersion
	rt.InitVector(&m.operatorCodes, uint32(native.UniquePtrSize), true)
	rt.InitVector(&m.subgraphs, uint32(native.UniquePtrSize), true)
	rt.InitVector(&m.buffers, uint32(native.UniquePtrSize), true)
	if m.description, err = rt.CString(description); err != nil {
		b.Discard()
		return nil, err
	}
	b.AddBuffer(nil)
	if _, err = b.AddSubgraph("main"); err != nil {
		b.Discard()
		return nil, err
	}
	return b, nil
}

func (b *Builder) rt() *native.Runtime {
	return b.model.rt
}

// AddSubgraph appends an empty subgraph and makes it current.
func (b *Builder) AddSubgraph(name string) (int, error) {
	subgraphs := b.model.Subgraphs()
	g := subgraphs.Emplace()
	b.rt().InitVector(&g.tensors, uint32(native.UniquePtrSize), true)
	b.rt().InitVector(&g.inputs, int32Size, false)
	b.rt().InitVector(&g.outputs, int32Size, false)
	b.rt().InitVector(&g.operators, uint32(native.UniquePtrSize), true)
	b.graph = g
	var err error
	if g.name, err = b.rt().CString(name); err != nil {
		return 0, err
	}
	return subgraphs.Len() - 1, nil
}

func (b *Builder) AddOperatorCode(builtinCode, version int32, customCode string) (uint32, error) {
	codes := b.model.OperatorCodes()
	c := codes.Emplace()
	c.builtinCode = builtinCode
	c.version = version
	if customCode != "" {
		var err error
		if c.customCode, err = b.rt().CString(customCode); err != nil {
			return 0, err
		}
	}
	return uint32(codes.Len() - 1), nil
}

// AddBuffer copies data into a new buffer and returns its index.
func (b *Builder) AddBuffer(data []byte) uint32 {
	buffers := b.model.Buffers()
	buf := buffers.Emplace()
	b.rt().InitVector(&buf.data, 1, false)
	buf.Data().AssignSlice(data)
	return uint32(buffers.Len() - 1)
}

// AddTensor appends a tensor to the current subgraph. A tensor with
// constant data must match the size of its buffer.
func (b *Builder) AddTensor(spec TensorSpec) (int32, error) {
	buffers := b.model.Buffers()
	if int(spec.Buffer) >= buffers.Len() {
		return 0, moerr.NewInvalidInputNoCtx("tensor %s refers to buffer %d of %d", spec.Name, spec.Buffer, buffers.Len())
	}
	if size := buffers.At(int(spec.Buffer)).Data().Len(); size > 0 {
		want := spec.Kind.ByteSize()
		for _, d := range spec.Shape {
			want *= int(d)
		}
		if want != size {
			return 0, moerr.NewSizeNotMatchNoCtx("tensor %s needs %d bytes, buffer %d holds %d", spec.Name, want, spec.Buffer, size)
		}
	}
	for _, d := range spec.Shape {
		if d < 0 {
			return 0, moerr.NewInvalidInputNoCtx("tensor %s has dimension %d", spec.Name, d)
		}
	}

	tensors := b.graph.Tensors()
	t := tensors.Emplace()
	b.rt().InitVector(&t.shape, int32Size, false)
	stl.Wrap[int32](&t.shape).AssignSlice(spec.Shape)
	t.kind = spec.Kind
	t.buffer = spec.Buffer
	t.isVariable = spec.Variable
	var err error
	if t.name, err = b.rt().CString(spec.Name); err != nil {
		return 0, err
	}
	return int32(tensors.Len() - 1), nil
}

// AddOperator appends an operator to the current subgraph. Inputs may hold
// -1 for an omitted optional input.
func (b *Builder) AddOperator(opcodeIndex uint32, inputs, outputs []int32) error {
	if n := b.model.OperatorCodes().Len(); int(opcodeIndex) >= n {
		return moerr.NewInvalidInputNoCtx("operator code %d of %d", opcodeIndex, n)
	}
	tensors := b.graph.Tensors()
	if err := checkTensorIndices(inputs, tensors.Len(), true); err != nil {
		return err
	}
	if err := checkTensorIndices(outputs, tensors.Len(), false); err != nil {
		return err
	}

	op := b.graph.Operators().Emplace()
	op.opcodeIndex = opcodeIndex
	b.rt().InitVector(&op.inputs, int32Size, false)
	b.rt().InitVector(&op.outputs, int32Size, false)
	b.rt().InitBitVector(&op.mutatingVariableInputs)
	op.Inputs().AssignSlice(inputs)
	op.Outputs().AssignSlice(outputs)
	mutating := op.MutatingVariableInputs()
	for _, idx := range inputs {
		mutating.PushBack(idx >= 0 && tensors.At(int(idx)).isVariable)
	}
	return nil
}

func (b *Builder) SetInputs(indices ...int32) error {
	return b.setIO(b.graph.Inputs(), indices)
}

func (b *Builder) SetOutputs(indices ...int32) error {
	return b.setIO(b.graph.Outputs(), indices)
}

func (b *Builder) setIO(v stl.Vector[int32], indices []int32) error {
	if err := checkTensorIndices(indices, b.graph.Tensors().Len(), false); err != nil {
		return err
	}
	v.AssignSlice(indices)
	return nil
}

// Finish hands over the model. The builder must not be used afterwards.
func (b *Builder) Finish() *Model {
	m := b.model
	b.model, b.graph = nil, nil
	logutil.Debug("model: built",
		zap.String("description", m.Description()),
		zap.Int("subgraphs", m.Subgraphs().Len()),
		zap.Int("operator-codes", m.OperatorCodes().Len()),
		zap.Int("buffers", m.Buffers().Len()),
	)
	return m
}

// Discard destroys the partly built model.
func (b *Builder) Discard() {
	if b.model != nil {
		_ = b.model.Close()
		b.model, b.graph = nil, nil
	}
}

func checkTensorIndices(indices []int32, n int, optional bool) error {
	for _, idx := range indices {
		if idx == -1 && optional {
			continue
		}
		if idx < 0 || int(idx) >= n {
			return moerr.NewInvalidInputNoCtx("tensor index %d of %d", idx, n)
		}
	}
	return nil
}
