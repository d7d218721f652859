package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksCoverFileWithoutOverlap(t *testing.T) {
	var b strings.Builder
	b.WriteString("// Package demo does things.\n\n")
	for i := 0; i < 200; i++ {
		b.WriteString("func handler() { doWork(); logResult() }\n")
	}
	content := b.String()

	chunks := File("demo.go", []byte(content), Policy{MinBytes: 256, MaxBytes: 1024})
	require.NotEmpty(t, chunks)

	offset := 0
	var rebuilt strings.Builder
	for _, c := range chunks {
		assert.Equal(t, offset, c.StartByte)
		assert.Equal(t, c.StartByte+len(c.Content), c.EndByte)
		offset = c.EndByte
		rebuilt.WriteString(c.Content)
	}
	assert.Equal(t, len(content), offset)
	assert.Equal(t, content, rebuilt.String())
}

func TestChunkSizeWindow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("some line of plain code content here\n")
	}

	chunks := File("x.go", []byte(b.String()), Policy{MinBytes: 256, MaxBytes: 1024})
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 1024)
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, len(c.Content), 256)
		}
	}
}

func TestChunkClassification(t *testing.T) {
	content := "// Package demo is documented here.\n" +
		"// More header text.\n" +
		"package demo\n" +
		"func run() {}\n" +
		"// trailing comment region\n" +
		"// explaining the next part\n"

	chunks := File("demo.go", []byte(content), Policy{MinBytes: 1, MaxBytes: 4096})
	require.Len(t, chunks, 3)
	assert.Equal(t, TypeDocstring, chunks[0].Type)
	assert.Equal(t, TypeCode, chunks[1].Type)
	assert.Equal(t, TypeComment, chunks[2].Type)
}

func TestChunkBlockComments(t *testing.T) {
	content := "int x = 1;\n" +
		"/* a block\n" +
		"   comment spanning\n" +
		"   lines */\n" +
		"int y = 2;\n"

	chunks := File("a.c", []byte(content), Policy{MinBytes: 1, MaxBytes: 4096})
	require.Len(t, chunks, 3)
	assert.Equal(t, TypeCode, chunks[0].Type)
	assert.Equal(t, TypeComment, chunks[1].Type)
	assert.Equal(t, TypeCode, chunks[2].Type)
}

func TestChunkNeverSplitsRunes(t *testing.T) {
	line := strings.Repeat("héllo wörld ", 400) + "\n"

	chunks := File("x.txt", []byte(line), Policy{MinBytes: 64, MaxBytes: 100})
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.ToValidUTF8(c.Content, "?") == c.Content,
			"chunk content must be valid UTF-8")
	}
}

func TestChunkIDNormalizesTrailingWhitespace(t *testing.T) {
	assert.Equal(t, ChunkID("foo();  \nbar();\t\n"), ChunkID("foo();\nbar();\n"))
	assert.NotEqual(t, ChunkID("foo();\n"), ChunkID("bar();\n"))
}

func TestChunkLineNumbers(t *testing.T) {
	content := "line one\nline two\nline three\n"

	chunks := File("x.txt", []byte(content), Policy{MinBytes: 1, MaxBytes: 4096})
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestChunkEmptyFile(t *testing.T) {
	assert.Nil(t, File("x.go", nil, DefaultPolicy))
}

func TestChunkUnknownExtensionIsAllCode(t *testing.T) {
	content := "# looks like a comment\ndata data data\n"

	chunks := File("file.weird", []byte(content), Policy{MinBytes: 1, MaxBytes: 4096})
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeCode, chunks[0].Type)
	assert.Equal(t, "unknown", chunks[0].Language)
}

func TestChunkDeterministicIDs(t *testing.T) {
	content := "package x\nfunc a() {}\n"
	c1 := File("x.go", []byte(content), DefaultPolicy)
	c2 := File("x.go", []byte(content), DefaultPolicy)
	require.Equal(t, len(c1), len(c2))
	for i := range c1 {
		assert.Equal(t, c1[i].ID, c2[i].ID)
	}
}
