package runner

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scqc/internal/metrics"
)

func init() {
	metrics.Init()
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunSuccess(t *testing.T) {
	t.Parallel()
	requireShell(t)

	require.NoError(t, NewExec(zap.NewNop()).Run(context.Background(), "sh", []string{"-c", "exit 0"}))
}

func TestExecRunNonZeroExit(t *testing.T) {
	t.Parallel()
	requireShell(t)

	err := NewExec(nil).Run(context.Background(), "sh", []string{"-c", "echo partial download >&2; exit 3"})
	require.ErrorIs(t, err, ErrNonZeroExit)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 3, exitErr.Code)
	require.Equal(t, "partial download", exitErr.Output)
	require.Equal(t, "sh exited with code 3: partial download", err.Error())
}

func TestExecRunMissingProgram(t *testing.T) {
	t.Parallel()

	err := NewExec(nil).Run(context.Background(), "scqc-definitely-missing-binary", nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNonZeroExit))
	require.Contains(t, err.Error(), "run scqc-definitely-missing-binary")
}

func TestTail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", tail("  abc\n", 10))
	require.Equal(t, "...cdef", tail("abcdef", 4))
	require.Equal(t, strings.Repeat("x", 5), tail(strings.Repeat("x", 5), 0))
}

func TestPrefetchArgs(t *testing.T) {
	t.Parallel()

	got := PrefetchArgs(PrefetchOptions{OutDir: "/data/sra", MaxSize: "50G", LogLevel: "warn"}, "SRR1")
	require.Equal(t, []string{"-X", "50G", "-L", "warn", "-O", "/data/sra", "SRR1"}, got)
	require.Equal(t, []string{"SRR2"}, PrefetchArgs(PrefetchOptions{}, "SRR2"))
}

func TestFasterqDumpArgs(t *testing.T) {
	t.Parallel()

	got := FasterqDumpArgs(FasterqOptions{OutDir: "/data/fastq", Threads: 4, SplitFiles: true, LogLevel: "info"}, "/data/sra", "SRR1")
	require.Equal(t, []string{
		"--split-files", "-e", "4", "-L", "info", "-O", "/data/fastq", "/data/sra/SRR1/SRR1.sra",
	}, got)
}
