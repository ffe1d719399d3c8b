package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybersorcerer/hl7-ls/internal/schema"
)

const fixtureSchema = `
name = "site overlay"

[[segments]]
name = "ZPD"
description = "Local site-specific patient demographics"
`

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	std, err := schema.Standard()
	require.NoError(t, err)
	return schema.NewRegistry(std)
}

func TestScanAndLoadAppliesExistingSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.hl7v.toml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureSchema), 0644))

	registry := newTestRegistry(t)
	w, err := NewWatcher(dir, registry)
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.ScanAndLoad())

	_, ok := registry.LookupSegment("ZPD")
	assert.True(t, ok)
}

func TestIsSchemaFileMatchesOnlySuffix(t *testing.T) {
	assert.True(t, isSchemaFile("/a/b/site.hl7v.toml"))
	assert.False(t, isSchemaFile("/a/b/site.toml"))
	assert.False(t, isSchemaFile("/a/b/readme.md"))
}

func TestWatcherLoadsFileWrittenAfterStart(t *testing.T) {
	dir := t.TempDir()
	registry := newTestRegistry(t)
	w, err := NewWatcher(dir, registry)
	require.NoError(t, err)
	require.NoError(t, w.ScanAndLoad())

	go w.Start()
	defer w.Stop()

	path := filepath.Join(dir, "late.hl7v.toml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureSchema), 0644))

	require.Eventually(t, func() bool {
		_, ok := registry.LookupSegment("ZPD")
		return ok
	}, 2*time.Second, 20*time.Millisecond)
}
