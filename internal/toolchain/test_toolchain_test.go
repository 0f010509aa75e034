package toolchain

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"assemblyline/internal/lang"
	"assemblyline/internal/lang/typescript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func needShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	needShell(t)
	e := &Exec{Commands: lang.Commands{
		Install:   []string{"sh", "-c", "echo installed"},
		TypeCheck: []string{"sh", "-c", "echo 'src/a.ts(1,2): error TS2304: x' >&2; exit 2"},
	}}
	dir := t.TempDir()

	out, err := e.InstallDependencies(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, "installed\n", out.Text)

	out, err = e.TypeCheck(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Equal(t, 2, out.ExitCode)
	assert.Contains(t, out.Text, "TS2304")
}

func TestExecSkipsEmptyCommands(t *testing.T) {
	out, err := (&Exec{}).LintAndFormat(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.True(t, out.OK())
}

func TestExecTimeout(t *testing.T) {
	needShell(t)
	e := &Exec{Commands: lang.Commands{TypeCheck: []string{"sh", "-c", "sleep 5"}}, Timeout: 50 * time.Millisecond}
	_, err := e.TypeCheck(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecMissingBinary(t *testing.T) {
	e := &Exec{Commands: lang.Commands{Install: []string{"definitely-not-a-real-binary-xyz"}}}
	_, err := e.InstallDependencies(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestForAdapter(t *testing.T) {
	e := ForAdapter(typescript.New(), 0)
	assert.NotEmpty(t, e.Commands.TypeCheck)
}
