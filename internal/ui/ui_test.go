package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoColorStylesRenderPlain(t *testing.T) {
	s := NoColorStyles()
	assert.Equal(t, "hello", s.Header.Render("hello"))
	assert.Equal(t, "hello", s.Error.Render("hello"))
}

func TestAutoStylesReturnsUsableStyles(t *testing.T) {
	// Under test runners stdout is not a TTY, so plain styles come back.
	s := AutoStyles()
	assert.Equal(t, "x", s.Success.Render("x"))
}
