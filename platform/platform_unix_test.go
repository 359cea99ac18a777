//go:build unix

package platform_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/gosock/platform"
)

// poll(2) is never restarted by SA_RESTART, so every delivered signal
// interrupts it. Spamming a signal the runtime ignores verifies that the
// wait still honors its overall deadline instead of restarting the full
// timeout on each interruption.
func TestWaitDeadlineHoldsAcrossInterrupts(t *testing.T) {
	rel, err := platform.AcquireStack()
	require.NoError(t, err)
	defer rel()

	fd, err := platform.Socket(platform.FamilyIPv4, platform.TypeDatagram)
	require.NoError(t, err)
	defer platform.Close(fd)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				syscall.Kill(syscall.Getpid(), syscall.SIGWINCH)
				time.Sleep(time.Millisecond)
			}
		}
	}()

	start := time.Now()
	ready, err := platform.Wait(fd, false, 200)
	close(stop)
	<-done

	require.NoError(t, err)
	require.False(t, ready)
	require.Less(t, time.Since(start), 2*time.Second)
}
