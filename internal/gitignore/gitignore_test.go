package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPatterns(t *testing.T) {
	m := NewMatcher()
	m.Add("*.log", "")
	m.Add("build/", "")
	m.Add("/secret.txt", "")

	assert.True(t, m.Match("app.log", false))
	assert.True(t, m.Match("nested/deep/app.log", false))
	assert.True(t, m.Match("build", true))
	assert.True(t, m.Match("build/out.bin", false))
	assert.True(t, m.Match("secret.txt", false))

	assert.False(t, m.Match("app.go", false))
	assert.False(t, m.Match("nested/secret.txt", false), "anchored pattern only matches at root")
	assert.False(t, m.Match("build", false), "dir-only pattern does not match a plain file")
}

func TestNegation(t *testing.T) {
	m := NewMatcher()
	m.Add("*.log", "")
	m.Add("!keep.log", "")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestNegationOrderMatters(t *testing.T) {
	m := NewMatcher()
	m.Add("!keep.log", "")
	m.Add("*.log", "")

	assert.True(t, m.Match("keep.log", false), "later rule wins")
}

func TestDoubleStar(t *testing.T) {
	m := NewMatcher()
	m.Add("**/logs", "")
	m.Add("docs/**", "")

	assert.True(t, m.Match("logs", true))
	assert.True(t, m.Match("a/b/logs", true))
	assert.True(t, m.Match("docs/guide.md", false))
	assert.False(t, m.Match("mydocs/guide.md", false))
}

func TestInternalSlashAnchors(t *testing.T) {
	m := NewMatcher()
	m.Add("doc/frotz", "")

	assert.True(t, m.Match("doc/frotz", true))
	assert.False(t, m.Match("a/doc/frotz", true))
}

func TestCommentsAndEscapes(t *testing.T) {
	m := NewMatcher()
	m.Add("# just a comment", "")
	m.Add("", "")
	m.Add(`\#literal`, "")

	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Match("#literal", false))
}

func TestScopedToBase(t *testing.T) {
	m := NewMatcher()
	m.Add("*.tmp", "sub")

	assert.True(t, m.Match("sub/scratch.tmp", false))
	assert.False(t, m.Match("scratch.tmp", false))
	assert.False(t, m.Match("other/scratch.tmp", false))
}

func TestQuestionMarkAndClass(t *testing.T) {
	m := NewMatcher()
	m.Add("file?.txt", "")
	m.Add("[abc].go", "")

	assert.True(t, m.Match("file1.txt", false))
	assert.False(t, m.Match("file12.txt", false))
	assert.True(t, m.Match("a.go", false))
	assert.False(t, m.Match("d.go", false))
}

func TestAddFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.log\n# comment\n!keep.log\n"), 0o644))

	m := NewMatcher()
	require.NoError(t, m.AddFile(path, ""))

	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("x.log", false))
	assert.False(t, m.Match("keep.log", false))

	assert.Error(t, m.AddFile(filepath.Join(dir, "missing"), ""))
}
