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

package moerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMoErrCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     uint16
		expected bool
	}{
		{
			name:     "nil error is ok",
			err:      nil,
			code:     Ok,
			expected: true,
		},
		{
			name:     "nil error is not internal",
			err:      nil,
			code:     ErrInternal,
			expected: false,
		},
		{
			name:     "out of range",
			err:      NewOutOfRangeNoCtx("index", "%d >= %d", 3, 2),
			code:     ErrOutOfRange,
			expected: true,
		},
		{
			name:     "type mismatch",
			err:      NewTypeMismatchNoCtx("Tensor", "Operator"),
			code:     ErrTypeMismatch,
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("some error"),
			code:     ErrInternal,
			expected: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsMoErrCode(tt.err, tt.code))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewOutOfRangeNoCtx("index", "%d >= %d", 3, 2)
	require.Equal(t, "data out of range: index, 3 >= 2", err.Error())
	require.Equal(t, ErrOutOfRange, err.ErrorCode())

	err = NewEmptyVectorNoCtx()
	require.Equal(t, "empty vector", err.Display())
}

func TestErrorDetailFromContext(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errors.New("runtime closed"))
	err := NewInvalidState(ctx, "vector %d", 1)
	require.Equal(t, "runtime closed", err.Detail())
	require.Equal(t, "invalid state vector 1: runtime closed", err.Display())
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	require.Nil(t, ConvertGoError(ctx, nil))

	orig := NewBadConfigNoCtx("missing %s", "log")
	require.Equal(t, orig, ConvertGoError(ctx, orig))
	require.True(t, IsMoErrCode(ConvertGoError(ctx, errors.New("x")), ErrInternal))

	require.Equal(t, orig, ConvertPanicError(ctx, orig))
	require.True(t, IsMoErrCode(ConvertPanicError(ctx, "boom"), ErrInternal))
}

func TestUnknownCodePanics(t *testing.T) {
	require.Panics(t, func() {
		_ = newError(Context(), 12345)
	})
}
