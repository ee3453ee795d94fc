package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseops/subaudit/internal/config"
)

func TestInitStore_Drivers(t *testing.T) {
	origCfg := cfg
	t.Cleanup(func() { cfg = origCfg })

	dir := t.TempDir()

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "test.db")}}
	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg = &config.Config{Store: config.StoreConfig{Driver: "csv", Dir: filepath.Join(dir, "pages")}}
	st, err = initStore(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg = &config.Config{Store: config.StoreConfig{Driver: "mongodb"}}
	_, err = initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}
