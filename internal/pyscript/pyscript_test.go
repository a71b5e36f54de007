package pyscript

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunPrintAndArithmetic(t *testing.T) {
	code := `
x := 2
y := 3
print(x + y)
`
	out, err := Run(code, Callbacks{}, 0)
	require.NoError(t, err)
	require.Equal(t, "5\n", out)
}

func TestRunIfElse(t *testing.T) {
	code := `
n := 10
if n > 5 {
	print("big")
} else {
	print("small")
}
`
	out, err := Run(code, Callbacks{}, 0)
	require.NoError(t, err)
	require.Equal(t, "big\n", out)
}

func TestRunForLoop(t *testing.T) {
	code := `
total := 0
for i := 0; i < 5; i += 1 {
	total += i
}
print(total)
`
	out, err := Run(code, Callbacks{}, 0)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestRunReturn(t *testing.T) {
	code := `return "done"`
	out, err := Run(code, Callbacks{}, 0)
	require.NoError(t, err)
	require.Equal(t, "done", out)
}

func TestRunInstructionLimit(t *testing.T) {
	code := `
total := 0
for i := 0; i < 1000000; i += 1 {
	total += i
}
`
	_, err := Run(code, Callbacks{}, 100)
	require.Error(t, err)
}

func TestRunReadWriteEditCallbacks(t *testing.T) {
	var written, edited string
	cb := Callbacks{
		Read: func(path string) (string, error) {
			return "file contents for " + path, nil
		},
		Write: func(path, content string) (string, error) {
			written = content
			return "written " + path, nil
		},
		Edit: func(path, oldText, newText string) (string, error) {
			edited = oldText + "->" + newText
			return "edited " + path, nil
		},
	}

	code := `
content := read("notes.txt")
print(content)
print(write("out.txt", "hello"))
print(edit("out.txt", "a", "b"))
`
	out, err := Run(code, cb, 0)
	require.NoError(t, err)
	require.Contains(t, out, "file contents for notes.txt")
	require.Contains(t, out, "written out.txt")
	require.Contains(t, out, "edited out.txt")
	require.Equal(t, "hello", written)
	require.Equal(t, "a->b", edited)
}

func TestRunCallbackUnavailable(t *testing.T) {
	_, err := Run(`read("x.txt")`, Callbacks{}, 0)
	require.Error(t, err)
}

func TestRunUndefinedVariable(t *testing.T) {
	_, err := Run(`print(missing)`, Callbacks{}, 0)
	require.Error(t, err)
}

func TestRunCallbackPropagatesError(t *testing.T) {
	cb := Callbacks{
		Read: func(path string) (string, error) {
			return "", errors.New("sandbox violation")
		},
	}
	_, err := Run(`read("../escape")`, cb, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sandbox violation")
}
