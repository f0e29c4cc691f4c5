package cartsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcherCoalescesPendingPushesPerUser(t *testing.T) {
	remote := newFakeRemote()
	remote.entered = make(chan struct{}, 4)
	remote.gate = make(chan struct{})
	d, err := NewDispatcher(remote)
	require.NoError(t, err)

	require.NoError(t, d.Push("user-1", []Line{product(1, "1")}))
	<-remote.entered

	require.NoError(t, d.Push("user-1", []Line{product(2, "1")}))
	require.NoError(t, d.Push("user-1", []Line{product(3, "1")}))
	close(remote.gate)
	closeDispatcher(t, d)

	pushes := remote.pushCalls()
	require.Len(t, pushes, 2)
	assert.Equal(t, []LineKey{{ProductID: 1}}, keysOf(pushes[0].lines))
	assert.Equal(t, []LineKey{{ProductID: 3}}, keysOf(pushes[1].lines))
}

func TestDispatcherClearSupersedesPendingPush(t *testing.T) {
	remote := newFakeRemote()
	remote.entered = make(chan struct{}, 4)
	remote.gate = make(chan struct{})
	d, err := NewDispatcher(remote)
	require.NoError(t, err)

	require.NoError(t, d.Push("user-1", []Line{product(1, "1")}))
	<-remote.entered
	require.NoError(t, d.Push("user-1", []Line{product(2, "1")}))
	require.NoError(t, d.Clear("user-1"))
	close(remote.gate)
	closeDispatcher(t, d)

	assert.Len(t, remote.pushCalls(), 1)
	assert.Equal(t, []string{"user-1"}, remote.clearCalls())
}

func TestDispatcherLogsFailuresWithoutRetry(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	remote := newFakeRemote()
	remote.pushErr = errRemoteDown
	d, err := NewDispatcher(remote, WithDispatcherLogger(zap.New(core)))
	require.NoError(t, err)

	require.NoError(t, d.Push("user-1", []Line{product(1, "1")}))
	closeDispatcher(t, d)

	assert.Len(t, remote.pushCalls(), 1)
	entries := logs.FilterMessage("remote cart write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "user-1", entries[0].ContextMap()["userId"])
}

func TestDispatcherRejectsWorkAfterClose(t *testing.T) {
	d, err := NewDispatcher(newFakeRemote())
	require.NoError(t, err)
	closeDispatcher(t, d)

	assert.ErrorIs(t, d.Push("user-1", nil), ErrDispatcherClosed)
	assert.ErrorIs(t, d.Clear("user-1"), ErrDispatcherClosed)
	closeDispatcher(t, d)
}

func TestDispatcherRequiresUserID(t *testing.T) {
	d, err := NewDispatcher(newFakeRemote())
	require.NoError(t, err)
	defer closeDispatcher(t, d)

	assert.Error(t, d.Push("", nil))
}

func TestDispatcherFlushHonoursContext(t *testing.T) {
	remote := newFakeRemote()
	remote.entered = make(chan struct{}, 1)
	remote.gate = make(chan struct{})
	d, err := NewDispatcher(remote)
	require.NoError(t, err)

	require.NoError(t, d.Push("user-1", nil))
	<-remote.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Flush(ctx), context.DeadlineExceeded)

	close(remote.gate)
	closeDispatcher(t, d)
}
