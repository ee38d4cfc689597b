package script

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	if _, err := exec.LookPath(DefaultPython); err != nil {
		t.Skipf("%s not available: %v", DefaultPython, err)
	}
	return logr.NewContext(context.Background(), testr.New(t))
}

func acquire(t *testing.T, ctx context.Context) *Interpreter {
	t.Helper()
	ip, err := Acquire(ctx, WithStderr(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ip.Close() })
	return ip
}

func TestRunScriptAndGet(t *testing.T) {
	ctx := testContext(t)
	ip := acquire(t, ctx)

	require.NoError(t, ip.RunScript(ctx, "x = 3\ny = 2.5\nname = 'simplegraph'\nshape = (2, 10)\nnothing = None\nflag = True\n"))

	cases := map[string]Value{
		"x":       Int(3),
		"y":       Real(2.5),
		"name":    Text("simplegraph"),
		"shape":   Ints(2, 10),
		"nothing": nil,
		"flag":    Int(1),
	}
	for name, want := range cases {
		got, err := ip.Get(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestCallOverloads(t *testing.T) {
	ctx := testContext(t)
	ip := acquire(t, ctx)

	require.NoError(t, ip.RunScript(ctx, `
def double(v):
    return v * 2

def describe(*args):
    return [type(a).__name__ for a in args]

def total(values):
    return sum(values)

def empty():
    return ()
`))

	got, err := ip.Call(ctx, "double", Int(21))
	require.NoError(t, err)
	assert.Equal(t, Int(42), got)

	got, err = ip.Call(ctx, "double", Real(1.25))
	require.NoError(t, err)
	assert.Equal(t, Real(2.5), got)

	got, err = ip.Call(ctx, "double", Text("ab"))
	require.NoError(t, err)
	assert.Equal(t, Text("abab"), got)

	got, err = ip.Call(ctx, "describe", Int(1), Real(1), Text("a"), Texts("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, Texts("int", "float", "str", "tuple", "NoneType"), got)

	got, err = ip.Call(ctx, "total", Reals(0.5, 1.5, 2))
	require.NoError(t, err)
	assert.Equal(t, Real(4), got)

	got, err = ip.Call(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, Tuple{}, got)
}

func TestRunFile(t *testing.T) {
	ctx := testContext(t)
	ip := acquire(t, ctx)

	path := filepath.Join(t.TempDir(), "export.py")
	require.NoError(t, os.WriteFile(path, []byte("import os\nprint('exporting')\nbase = os.path.basename(__file__)\n"), 0o600))
	require.NoError(t, ip.RunFile(ctx, path))

	got, err := ip.Get(ctx, "base")
	require.NoError(t, err)
	assert.Equal(t, Text("export.py"), got)
}

func TestPythonErrors(t *testing.T) {
	ctx := testContext(t)
	ip := acquire(t, ctx)

	_, err := ip.Get(ctx, "missing")
	var pyErr *Error
	require.ErrorAs(t, err, &pyErr)
	assert.Equal(t, "get", pyErr.Op)
	assert.Contains(t, pyErr.Exception(), "NameError")

	err = ip.RunScript(ctx, "raise ValueError('bad model')")
	require.ErrorAs(t, err, &pyErr)
	assert.Equal(t, "ValueError: bad model", pyErr.Exception())

	err = ip.RunFile(ctx, filepath.Join(t.TempDir(), "missing.py"))
	require.ErrorAs(t, err, &pyErr)
	assert.Contains(t, pyErr.Exception(), "FileNotFoundError")

	_, err = ip.Call(ctx, "missing")
	require.ErrorAs(t, err, &pyErr)

	// The interpreter keeps serving requests after script failures.
	require.NoError(t, ip.RunScript(ctx, "ok = 1"))
	got, err := ip.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, Int(1), got)
}

func TestNamespacesAreIsolated(t *testing.T) {
	ctx := testContext(t)
	a := acquire(t, ctx)
	b := acquire(t, ctx)

	require.NoError(t, a.RunScript(ctx, "value = 'a'"))
	require.NoError(t, b.RunScript(ctx, "value = 'b'"))

	got, err := a.Get(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, Text("a"), got)
	got, err = b.Get(ctx, "value")
	require.NoError(t, err)
	assert.Equal(t, Text("b"), got)
}

func TestSharedInterpreterLifetime(t *testing.T) {
	ctx := testContext(t)
	require.Equal(t, 0, shared.active())

	a, err := Acquire(ctx, WithStderr(io.Discard))
	require.NoError(t, err)
	b, err := Acquire(ctx, WithStderr(io.Discard))
	require.NoError(t, err)
	assert.Equal(t, 2, shared.active())
	assert.Same(t, a.proc, b.proc)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, shared.active())

	require.NoError(t, b.RunScript(ctx, "still = True"))
	_, err = a.Get(ctx, "still")
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, b.Close())
	assert.Equal(t, 0, shared.active())

	c, err := Acquire(ctx, WithStderr(io.Discard))
	require.NoError(t, err)
	defer c.Close()
	assert.NotSame(t, b.proc, c.proc)
	_, err = c.Get(ctx, "still")
	var pyErr *Error
	assert.ErrorAs(t, err, &pyErr)
}

func TestAcquireErrors(t *testing.T) {
	_, err := Acquire(context.Background(), WithPython(filepath.Join(t.TempDir(), "no-python")))
	require.Error(t, err)
	assert.Equal(t, 0, shared.active())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "(1, 2.5, \"x\", None)", Tuple{Int(1), Real(2.5), Text("x"), nil}.String())
	assert.Equal(t, "(3,)", Ints(3).String())
	assert.Equal(t, "()", Tuple{}.String())
}
