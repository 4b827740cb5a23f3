// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalldata_CodeOr(t *testing.T) {
	var data Calldata
	assert.Equal(t, int64(-1), data.CodeOr(-1))

	withCode := data.WithCode(0)
	assert.Equal(t, int64(0), withCode.CodeOr(-1))
	assert.Nil(t, data.Code, "WithCode must not mutate the receiver")
}

func TestHandle_String(t *testing.T) {
	assert.Equal(t, "output#none", Handle(0).String())
	assert.Equal(t, "output#42", Handle(42).String())
	assert.False(t, Handle(0).Valid())
	assert.True(t, Handle(1).Valid())
}
