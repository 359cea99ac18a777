package sockerr_test

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenListTeam/gosock/sockerr"
)

func TestWrapExtractsPlatformCode(t *testing.T) {
	cause := fmt.Errorf("connect: %w", syscall.ECONNREFUSED)
	err := sockerr.Wrap(sockerr.KindConnection, "connect", cause)

	require.Equal(t, int(syscall.ECONNREFUSED), err.Code)
	require.ErrorIs(t, err, syscall.ECONNREFUSED)
	require.Contains(t, err.Error(), "connection failed")
}

func TestWrapWithoutErrno(t *testing.T) {
	err := sockerr.Wrap(sockerr.KindResolution, "resolve", errors.New("no such host"))
	require.Equal(t, 0, err.Code)
	require.Contains(t, err.Error(), "no such host")
}

func TestKindPredicates(t *testing.T) {
	require.True(t, sockerr.IsTimeout(sockerr.New(sockerr.KindConnectTimeout, "connect", "")))
	require.True(t, sockerr.IsClosedByPeer(sockerr.New(sockerr.KindClosedByPeer, "read", "")))
	require.True(t, sockerr.IsWouldBlock(sockerr.New(sockerr.KindWouldBlock, "read", "")))
	require.False(t, sockerr.IsTimeout(sockerr.New(sockerr.KindConnection, "connect", "")))
	require.False(t, sockerr.IsTimeout(errors.New("plain")))
}

func TestKindMatchingThroughWrapping(t *testing.T) {
	inner := sockerr.New(sockerr.KindBind, "bind", "port busy")
	outer := fmt.Errorf("server start: %w", inner)

	require.True(t, sockerr.IsKind(outer, sockerr.KindBind))
	require.False(t, sockerr.IsKind(outer, sockerr.KindListen))

	var e *sockerr.Error
	require.True(t, errors.As(outer, &e))
	require.Equal(t, "bind", e.Op)
}

func TestSentinelIs(t *testing.T) {
	err := sockerr.Wrap(sockerr.KindIO, "write", syscall.EPIPE)
	require.ErrorIs(t, err, &sockerr.Error{Kind: sockerr.KindIO})
	require.NotErrorIs(t, err, &sockerr.Error{Kind: sockerr.KindAccept})
}
