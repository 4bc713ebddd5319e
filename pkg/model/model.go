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
	"iter"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/container/stl"
	"github.com/matrixorigin/nativevec/pkg/logutil"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// Model owns a model tree in runtime memory. Graphs, tensors and the other
// records it returns are borrowed from the tree and die with it.
type Model struct {
	rt   *native.Runtime
	root native.UniquePtr
}

func (m *Model) data() *modelRoot {
	if m.root.IsNil() {
		panic(moerr.NewInvalidStateNoCtx("model is closed"))
	}
	return (*modelRoot)(m.root.Get())
}

func (m *Model) Runtime() *native.Runtime {
	return m.rt
}

func (m *Model) Version() uint32 {
	return m.data().version
}

func (m *Model) Description() string {
	return native.GoString(m.data().description)
}

func (m *Model) OperatorCodes() stl.OwningVector[OperatorCode] {
	return stl.WrapOwning[OperatorCode](&m.data().operatorCodes)
}

func (m *Model) Subgraphs() stl.OwningVector[Graph] {
	return stl.WrapOwning[Graph](&m.data().subgraphs)
}

func (m *Model) Buffers() stl.OwningVector[Buffer] {
	return stl.WrapOwning[Buffer](&m.data().buffers)
}

// Graph returns the primary subgraph.
func (m *Model) Graph() *Graph {
	return m.Subgraphs().At(0)
}

func (m *Model) Tensors() stl.OwningVector[Tensor] {
	return m.Graph().Tensors()
}

func (m *Model) Operators() stl.OwningVector[Operator] {
	return m.Graph().Operators()
}

func (m *Model) TensorInfos() iter.Seq2[int, TensorInfo] {
	return m.Graph().TensorInfos()
}

// PruneUnusedTensors removes the tensors no operator and no graph input or
// output refers to, in every subgraph. It returns the number removed.
func (m *Model) PruneUnusedTensors() int {
	removed := 0
	for _, g := range m.Subgraphs().All() {
		removed += g.PruneUnusedTensors()
	}
	return removed
}

// Close destroys the model tree.
func (m *Model) Close() error {
	if m.root.IsNil() {
		return moerr.NewInvalidStateNoCtx("model is closed")
	}
	m.rt.FreeObject(m.root)
	m.root = native.UniquePtr{}
	return nil
}

// PruneUnusedTensors drops unreferenced tensors and renumbers the tensor
// indices held by operators and by the graph inputs and outputs.
func (g *Graph) PruneUnusedTensors() int {
	used := roaring.New()
	mark := func(v stl.Vector[int32]) {
		for x := range v.Values() {
			if x >= 0 {
				used.Add(uint32(x))
			}
		}
	}
	mark(g.Inputs())
	mark(g.Outputs())
	for _, op := range g.Operators().All() {
		mark(op.Inputs())
		mark(op.Outputs())
	}

	tensors := g.Tensors()
	n := tensors.Len()
	if used.GetCardinality() == uint64(n) {
		return 0
	}
	tensors.Retain(func(i int, _ *Tensor) bool {
		return used.Contains(uint32(i))
	})

	remap := func(v stl.Vector[int32]) {
		for _, x := range v.All() {
			if *x >= 0 {
				*x = int32(used.Rank(uint32(*x))) - 1
			}
		}
	}
	remap(g.Inputs())
	remap(g.Outputs())
	for _, op := range g.Operators().All() {
		remap(op.Inputs())
		remap(op.Outputs())
	}

	removed := n - tensors.Len()
	logutil.Debug("model: pruned unused tensors",
		zap.String("graph", g.Name()),
		zap.Int("removed", removed),
		zap.Int("kept", tensors.Len()),
	)
	return removed
}
