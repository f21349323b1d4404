package execrun

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not on PATH")
	}
	core, logs := observer.New(zap.DebugLevel)
	r := Exec{Log: zap.New(core)}

	out, errOut, err := r.Run(context.Background(), "sh", "-c", "printf hello; printf oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
	assert.Equal(t, "oops", string(errOut))
	assert.Equal(t, 1, logs.FilterMessage("exec ok").Len())

	_, _, err = r.Run(context.Background(), "sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("exec failed").Len())
}

func TestAvailable(t *testing.T) {
	assert.False(t, Available("definitely-not-a-binary-4f2a"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.True(t, strings.HasPrefix(truncate("abcdefgh", 3), "abc..."))
}
