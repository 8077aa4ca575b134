package runner

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTail_KeepsLastNBytesWhenOverLimit(t *testing.T) {
	s := "0123456789"
	assert.Equal(t, "789", truncateTail(s, 3))
}

func TestTruncateTail_ReturnsUnchangedWhenUnderLimit(t *testing.T) {
	s := "short"
	assert.Equal(t, s, truncateTail(s, 100))
}

func TestTruncateTail_ExactLengthIsUnchanged(t *testing.T) {
	s := "abcde"
	assert.Equal(t, s, truncateTail(s, 5))
}

func TestStatusForExit_MinusOneWithErrIsFailed(t *testing.T) {
	assert.Equal(t, "failed", statusForExit(-1, errors.New("boom")))
}

func TestStatusForExit_NonzeroExitWithoutMinusOneIsOK(t *testing.T) {
	// A command that ran and exited nonzero is still "ok" at the transport
	// level; exitCode itself carries the failure signal.
	assert.Equal(t, "ok", statusForExit(1, &exec.ExitError{}))
}

func TestStatusForExit_CleanExitIsOK(t *testing.T) {
	assert.Equal(t, "ok", statusForExit(0, nil))
}
