package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Ask(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(strings.NewReader("  hello  \n"), &out)

	got, err := c.ask("Name")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "Name: ", out.String())

	_, err = c.ask("Again")
	assert.ErrorIs(t, err, errQuit)
}

func TestConsole_AskBlock(t *testing.T) {
	c := newConsole(strings.NewReader("line one\n  line two\n.\nnext\n"), &bytes.Buffer{})
	got, err := c.askBlock("Code")
	require.NoError(t, err)
	assert.Equal(t, "line one\n  line two", got)

	rest, err := c.askBlock("More")
	require.NoError(t, err)
	assert.Equal(t, "next", rest, "end of input ends the block")
}

func TestConsole_Confirm(t *testing.T) {
	c := newConsole(strings.NewReader("Y\nyes\nno\n\n"), &bytes.Buffer{})
	for _, want := range []bool{true, true, false, false} {
		got, err := c.confirm("Sure?")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestConsole_Choose(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(strings.NewReader("7\nAI-Interview\n1\n"), &out)
	names := []string{"quick-test", "ai-interview"}

	i, err := c.choose("Path", names)
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Contains(t, out.String(), "between 1 and 2")

	i, err = c.choose("Path", names)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
}
