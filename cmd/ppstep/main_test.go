package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chain = `#define A B
#define B x y
A
`

func execute(t *testing.T, src, input string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "main.c")
	require.NoError(t, os.WriteFile(file, []byte(src), 0644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "none.yaml"), "--color", "never", file}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestQuit(t *testing.T) {
	out, err := execute(t, chain, "q\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Preprocessing "), "got %q", out)
	assert.True(t, strings.HasSuffix(out, "main.c.\npp> "), "got %q", out)
}

func TestRunToCompletion(t *testing.T) {
	out, err := execute(t, chain, "", "--run")
	require.NoError(t, err)
	assert.Contains(t, out, "Preprocessing complete.\nx y\n")
}

func TestBreakFlag(t *testing.T) {
	out, err := execute(t, chain, "q\n", "--run", "--break-expand", "A", "--prompt", "> ")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "B\n> "), "got %q", out)
}

func TestDefineFlag(t *testing.T) {
	out, err := execute(t, "X\n", "", "--run", "-D", "X=5")
	require.NoError(t, err)
	assert.Contains(t, out, "Preprocessing complete.\n5\n")
}

func TestDefineFunctionFlag(t *testing.T) {
	out, err := execute(t, "ADD(1, 2)\n", "", "--run", "-D", "ADD(a, b)=a+b")
	require.NoError(t, err)
	assert.Contains(t, out, "Preprocessing complete.\n1 + 2\n")
}

func TestBadDefineFlag(t *testing.T) {
	_, err := execute(t, "X\n", "", "--run", "-D", "1X=5")
	assert.ErrorContains(t, err, "invalid macro definition")
}

func TestIncludeFlag(t *testing.T) {
	inc := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inc, "defs.h"), []byte("#define Y 7\n"), 0644))
	out, err := execute(t, "#include <defs.h>\nY\n", "", "--run", "-I", inc)
	require.NoError(t, err)
	assert.Contains(t, out, "Preprocessing complete.\n7\n")
}

func TestEngineError(t *testing.T) {
	out, err := execute(t, "#error boom\n", "", "--run")
	require.Error(t, err)
	assert.Equal(t, "main.c:1: #error boom", err.Error())
	assert.Contains(t, out, "main.c:1: #error boom\n")
}

func TestMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), filepath.Join(t.TempDir(), "missing.c")})
	assert.Error(t, cmd.Execute())
}

func TestBadColorFlag(t *testing.T) {
	_, err := execute(t, chain, "", "--color", "sometimes")
	assert.ErrorContains(t, err, "invalid color mode")
}
