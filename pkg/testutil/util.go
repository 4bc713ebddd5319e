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

package testutil

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
	"github.com/matrixorigin/nativevec/pkg/native"
)

// NewRuntime opens a runtime that is closed when the test ends.
func NewRuntime(t testing.TB, opts ...native.Option) *native.Runtime {
	rt, err := native.Open(native.Config{Name: t.Name()}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, rt.Close())
	})
	return rt
}

// NewRawVector creates a vector of elemSize byte elements freed when the test ends.
func NewRawVector(t testing.TB, rt *native.Runtime, elemSize uint32, owning bool) *native.RawVector {
	h, err := rt.NewVector(elemSize, owning)
	require.NoError(t, err)
	t.Cleanup(func() {
		rt.FreeVector(h)
	})
	return h
}

func NewRawBitVector(t testing.TB, rt *native.Runtime) *native.RawBitVector {
	h, err := rt.NewBitVector()
	require.NoError(t, err)
	t.Cleanup(func() {
		rt.FreeBitVector(h)
	})
	return h
}

// RequirePanicCode runs fn, requires it to panic with a *moerr.Error of code
// and returns that error.
func RequirePanicCode(t testing.TB, code uint16, fn func()) *moerr.Error {
	t.Helper()
	var got any
	func() {
		defer func() {
			got = recover()
		}()
		fn()
	}()
	err, ok := got.(*moerr.Error)
	require.True(t, ok, "panic value %v", got)
	require.True(t, moerr.IsMoErrCode(err, code), err.Error())
	return err
}

// NewInt64Values returns 0..n-1, or n random values.
func NewInt64Values(n int, random bool) []int64 {
	vs := make([]int64, n)
	for i := range vs {
		if random {
			vs[i] = rand.Int63()
		} else {
			vs[i] = int64(i)
		}
	}
	return vs
}
