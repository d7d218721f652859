package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanBasicManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world")

	m, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	require.Len(t, m.Files, 2)
	assert.Equal(t, "a.txt", m.Files[0].Path)
	assert.Equal(t, "b.txt", m.Files[1].Path)
	assert.Equal(t, int64(5), m.Files[0].Size)
	assert.Len(t, m.Files[0].SHA256, 64)
	assert.NotEmpty(t, m.TreeHash)
}

func TestScanDeterministicTreeHash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub/x.go", "package sub")
	writeFile(t, dir, "y.go", "package main")

	m1, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)
	m2, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.Equal(t, m1.TreeHash, m2.TreeHash)
	assert.False(t, m2.HasChanges(m1))
}

func TestScanContentChangeChangesTreeHash(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	before, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "hello!")
	after, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	assert.NotEqual(t, before.TreeHash, after.TreeHash)
	assert.True(t, after.HasChanges(before))
}

func TestScanIgnoresDirsAndLockfiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", "package keep")
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, dir, "node_modules/pkg/index.js", "x")
	writeFile(t, dir, ".ping-mem/manifest.json", "{}")
	writeFile(t, dir, "package-lock.json", "{}")

	m, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "keep.go", m.Files[0].Path)
}

func TestScanHonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "*.log\ntmp/\n")
	writeFile(t, dir, "keep.go", "package keep")
	writeFile(t, dir, "debug.log", "noise")
	writeFile(t, dir, "tmp/scratch.txt", "noise")

	m, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	var paths []string
	for _, f := range m.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{".gitignore", "keep.go"}, paths)
}

func TestScanHonorsNestedGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sub/.gitignore", "*.gen\n")
	writeFile(t, dir, "sub/code.go", "package sub")
	writeFile(t, dir, "sub/out.gen", "generated")
	writeFile(t, dir, "root.gen", "kept, pattern is scoped to sub/")

	m, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	var paths []string
	for _, f := range m.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"root.gen", "sub/.gitignore", "sub/code.go"}, paths)
}

func TestScanSkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.txt", "ok")
	writeFile(t, dir, "big.txt", string(make([]byte, 128)))

	m, err := New().Scan(context.Background(), dir, Options{MaxFileSize: 64})
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.Equal(t, "small.txt", m.Files[0].Path)
}

func TestProjectIDFormat(t *testing.T) {
	id := ProjectID("/some/abs/path")
	assert.Regexp(t, `^ping-mem-[0-9a-f]{12}$`, id)
	assert.Equal(t, id, ProjectID("/some/abs/path"))
	assert.NotEqual(t, id, ProjectID("/some/other/path"))
}

func TestScanRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "file.txt", "x")

	_, err := New().Scan(context.Background(), filepath.Join(dir, "file.txt"), Options{})
	assert.Error(t, err)
}

func TestManifestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	m, err := New().Scan(context.Background(), dir, Options{})
	require.NoError(t, err)

	path := filepath.Join(dir, ".ping-mem", "manifest.json")
	require.NoError(t, m.Save(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, m.TreeHash, loaded.TreeHash)
	assert.Equal(t, m.ProjectID, loaded.ProjectID)

	missing, err := LoadManifest(filepath.Join(dir, "nope.json"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
