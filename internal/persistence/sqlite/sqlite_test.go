// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesWALAndPassesQuickCheck(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "j.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	v, err := UserVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	issues, err := QuickCheck(ctx, db)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestDSN_CarriesBusyTimeout(t *testing.T) {
	dsn := DSN("/tmp/x.sqlite", DefaultConfig())
	assert.Contains(t, dsn, "busy_timeout(5000)")
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/x.sqlite?"))
}
