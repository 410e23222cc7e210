package signalcore

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsInRunningState(t *testing.T) {
	c := New()
	assert.True(t, c.Continue())
	assert.True(t, c.WaitFlag())
	assert.False(t, c.CaughtSigint())
}

func TestStopFlipsContinue(t *testing.T) {
	c := New()
	c.Stop()
	assert.False(t, c.Continue())
}

func TestInterruptSetsCaughtSigintAndBroadcasts(t *testing.T) {
	c := New()
	var sent []syscall.Signal
	c.Broadcast = func(sig syscall.Signal) { sent = append(sent, sig) }

	c.handle(syscall.SIGINT)

	assert.True(t, c.CaughtSigint())
	assert.False(t, c.Continue())
	assert.False(t, c.WaitFlag())
	require.Len(t, sent, 1)
	assert.Equal(t, syscall.SIGALRM, sent[0])
}

// TestKillSignalEscalatesToSigkill covers the kill_stressors state machine:
// the first five rounds deliver the requested signal, everything after
// forces SIGKILL regardless of caller.
func TestKillSignalEscalatesToSigkill(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		assert.Equal(t, syscall.SIGALRM, c.KillSignal(syscall.SIGALRM), "round %d", i+1)
	}
	assert.Equal(t, syscall.SIGKILL, c.KillSignal(syscall.SIGALRM))
	assert.Equal(t, syscall.SIGKILL, c.KillSignal(syscall.SIGTERM))
}

func TestFatalSignalBroadcastsAlarmAndExitsSignaled(t *testing.T) {
	c := New()
	var sent []syscall.Signal
	c.Broadcast = func(sig syscall.Signal) { sent = append(sent, sig) }
	var exitCode int
	c.exit = func(code int) { exitCode = code }

	c.handle(syscall.SIGSEGV)

	require.Len(t, sent, 1)
	assert.Equal(t, syscall.SIGALRM, sent[0])
	assert.Equal(t, exitSignaled, exitCode)
	assert.False(t, c.Continue())
}

func TestIgnoredSignalsLeaveStateAlone(t *testing.T) {
	c := New()
	broadcasts := 0
	c.Broadcast = func(syscall.Signal) { broadcasts++ }

	c.handle(syscall.SIGUSR1)
	c.handle(syscall.SIGWINCH)
	c.handle(syscall.SIGTTOU)

	assert.True(t, c.Continue())
	assert.Zero(t, broadcasts)
}
