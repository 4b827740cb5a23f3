// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("DB_TEST_STR", "hello")
	t.Setenv("DB_TEST_EMPTY", "")
	t.Setenv("DB_TEST_INT", "42")
	t.Setenv("DB_TEST_BADINT", "4x2")
	t.Setenv("DB_TEST_I64", "-9000000000")
	t.Setenv("DB_TEST_DUR", "1500ms")
	t.Setenv("DB_TEST_BOOL", "YES")
	t.Setenv("DB_TEST_BADBOOL", "maybe")
	t.Setenv("DB_TEST_FLOAT", "0.5")

	assert.Equal(t, "hello", ParseString("DB_TEST_STR", "x"))
	assert.Equal(t, "x", ParseString("DB_TEST_EMPTY", "x"))
	assert.Equal(t, "x", ParseString("DB_TEST_UNSET", "x"))
	assert.Equal(t, 42, ParseInt("DB_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("DB_TEST_BADINT", 1))
	assert.Equal(t, int64(-9000000000), ParseInt64("DB_TEST_I64", 0))
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("DB_TEST_DUR", time.Second))
	assert.True(t, ParseBool("DB_TEST_BOOL", false))
	assert.True(t, ParseBool("DB_TEST_BADBOOL", true))
	assert.InDelta(t, 0.5, ParseFloat("DB_TEST_FLOAT", 1), 1e-9)
}
