package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/cartsync"
	"github.com/hanko-field/storefront/internal/client"
	"github.com/hanko-field/storefront/internal/platform/localstore"
)

var _ client.TokenSource = (*Manager)(nil)

func newManager(t *testing.T, store localstore.Store, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(store, WithClock(now))
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)
}

func TestLoginPersistsAndEmits(t *testing.T) {
	store := localstore.NewMemory()
	m := newManager(t, store, time.Now)

	var got []cartsync.Transition
	m.OnTransition(func(_ context.Context, tr cartsync.Transition) { got = append(got, tr) })

	err := m.Login(context.Background(), Credentials{UserID: " u1 ", Email: "a@example.com", Token: "tok"})
	require.NoError(t, err)

	assert.Equal(t, []cartsync.Transition{{Kind: cartsync.TransitionLogin, UserID: "u1"}}, got)
	assert.Equal(t, cartsync.Authenticated("u1"), m.Identity())

	token, err := m.Token(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = m.Token(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrUserMismatch)

	restored := newManager(t, store, time.Now)
	id, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
}

func TestLoginRequiresToken(t *testing.T) {
	m := newManager(t, localstore.NewMemory(), time.Now)
	assert.Error(t, m.Login(context.Background(), Credentials{UserID: "u1"}))
	assert.False(t, m.Identity().IsAuthenticated())
}

func TestLogoutEmitsWhileTokenAvailable(t *testing.T) {
	store := localstore.NewMemory()
	m := newManager(t, store, time.Now)
	ctx := context.Background()
	require.NoError(t, m.Login(ctx, Credentials{UserID: "u1", Token: "tok"}))

	var tokenDuringLogout string
	m.OnTransition(func(ctx context.Context, tr cartsync.Transition) {
		if tr.Kind == cartsync.TransitionLogout {
			tokenDuringLogout, _ = m.Token(ctx, "u1")
		}
	})
	require.NoError(t, m.Logout(ctx))

	assert.Equal(t, "tok", tokenDuringLogout)
	assert.False(t, m.Identity().IsAuthenticated())
	_, err := m.Token(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, ok, err := store.Get(ctx, credentialsKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutWhenAnonymousEmitsNothing(t *testing.T) {
	m := newManager(t, localstore.NewMemory(), time.Now)
	called := false
	m.OnTransition(func(context.Context, cartsync.Transition) { called = true })
	require.NoError(t, m.Logout(context.Background()))
	assert.False(t, called)
}

func TestRestoreDiscardsExpiredAndUnreadable(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	store := localstore.NewMemory()
	data, err := json.Marshal(Credentials{UserID: "u1", Token: "tok", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, credentialsKey, data))

	id, err := newManager(t, store, func() time.Time { return now }).Restore(ctx)
	require.NoError(t, err)
	assert.False(t, id.IsAuthenticated())
	_, ok, _ := store.Get(ctx, credentialsKey)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, credentialsKey, []byte("not json")))
	id, err = newManager(t, store, func() time.Time { return now }).Restore(ctx)
	require.NoError(t, err)
	assert.False(t, id.IsAuthenticated())
}

func TestRefreshKeepsIdentity(t *testing.T) {
	store := localstore.NewMemory()
	m := newManager(t, store, time.Now)
	ctx := context.Background()
	assert.ErrorIs(t, m.Refresh(ctx, "x", time.Time{}), ErrNotSignedIn)

	require.NoError(t, m.Login(ctx, Credentials{UserID: "u1", Token: "old"}))
	emitted := 0
	m.OnTransition(func(context.Context, cartsync.Transition) { emitted++ })
	require.NoError(t, m.Refresh(ctx, "new", time.Time{}))

	token, err := m.Token(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", token)
	assert.Zero(t, emitted)
}

func TestCancelledListenerIsNotCalled(t *testing.T) {
	m := newManager(t, localstore.NewMemory(), time.Now)
	called := false
	cancel := m.OnTransition(func(context.Context, cartsync.Transition) { called = true })
	cancel()
	cancel()
	require.NoError(t, m.Login(context.Background(), Credentials{UserID: "u1", Token: "t"}))
	assert.False(t, called)
}

type recordingRemote struct {
	mu      sync.Mutex
	carts   map[string][]cartsync.Line
	cleared []string
}

func (r *recordingRemote) FetchCart(_ context.Context, userID string) ([]cartsync.Line, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.carts[userID], nil
}

func (r *recordingRemote) PushCart(_ context.Context, userID string, lines []cartsync.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.carts[userID] = lines
	return nil
}

func (r *recordingRemote) ClearCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, userID)
	r.cleared = append(r.cleared, userID)
	return nil
}

func TestManagerDrivesEngineTransitions(t *testing.T) {
	ctx := context.Background()
	remote := &recordingRemote{carts: map[string][]cartsync.Line{}}
	local, err := cartsync.NewLocalCache(localstore.NewMemory(), nil)
	require.NoError(t, err)
	engine, err := cartsync.NewEngine(cartsync.EngineDeps{Remote: remote, Local: local})
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close(ctx)) }()

	m := newManager(t, localstore.NewMemory(), time.Now)
	m.OnTransition(func(ctx context.Context, tr cartsync.Transition) { engine.HandleTransition(ctx, tr) })

	engine.AddLine(ctx, cartsync.Line{ProductID: 5, Name: "Sock", UnitPrice: decimal.NewFromInt(3)})
	require.NoError(t, m.Login(ctx, Credentials{UserID: "u1", Token: "t"}))
	require.NoError(t, engine.Flush(ctx))

	state := engine.Snapshot()
	assert.Equal(t, "u1", state.Identity.UserID)
	require.Len(t, state.Lines, 1)
	remote.mu.Lock()
	assert.Len(t, remote.carts["u1"], 1)
	remote.mu.Unlock()

	require.NoError(t, m.Logout(ctx))
	require.NoError(t, engine.Flush(ctx))
	assert.True(t, engine.Snapshot().Empty())
	assert.False(t, engine.Snapshot().Identity.IsAuthenticated())
	remote.mu.Lock()
	assert.Equal(t, []string{"u1"}, remote.cleared)
	remote.mu.Unlock()
}

func TestLoginAsAnotherUserLogsOutFirst(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, localstore.NewMemory(), time.Now)
	require.NoError(t, m.Login(ctx, Credentials{UserID: "alice", Token: "alice-tok"}))

	var got []cartsync.Transition
	var tokenDuringLogout string
	m.OnTransition(func(ctx context.Context, tr cartsync.Transition) {
		got = append(got, tr)
		if tr.Kind == cartsync.TransitionLogout {
			tokenDuringLogout, _ = m.Token(ctx, "alice")
		}
	})
	require.NoError(t, m.Login(ctx, Credentials{UserID: "bob", Token: "bob-tok"}))

	assert.Equal(t, []cartsync.Transition{
		{Kind: cartsync.TransitionLogout},
		{Kind: cartsync.TransitionLogin, UserID: "bob"},
	}, got)
	assert.Equal(t, "alice-tok", tokenDuringLogout)

	got = nil
	require.NoError(t, m.Login(ctx, Credentials{UserID: "bob", Token: "bob-tok-2"}))
	assert.Equal(t, []cartsync.Transition{{Kind: cartsync.TransitionLogin, UserID: "bob"}}, got)
}

func TestLoginOverExistingSessionKeepsCartsApart(t *testing.T) {
	ctx := context.Background()
	remote := &recordingRemote{carts: map[string][]cartsync.Line{
		"alice": {{ProductID: 5, Name: "Scarf", UnitPrice: decimal.NewFromInt(30), Quantity: 1}},
	}}
	local, err := cartsync.NewLocalCache(localstore.NewMemory(), nil)
	require.NoError(t, err)
	engine, err := cartsync.NewEngine(cartsync.EngineDeps{Remote: remote, Local: local})
	require.NoError(t, err)
	defer func() { require.NoError(t, engine.Close(ctx)) }()

	m := newManager(t, localstore.NewMemory(), time.Now)
	m.OnTransition(func(ctx context.Context, tr cartsync.Transition) { engine.HandleTransition(ctx, tr) })

	require.NoError(t, m.Login(ctx, Credentials{UserID: "alice", Token: "a"}))
	require.Len(t, engine.Snapshot().Lines, 1)

	require.NoError(t, m.Login(ctx, Credentials{UserID: "bob", Token: "b"}))
	require.NoError(t, engine.Flush(ctx))

	state := engine.Snapshot()
	assert.Equal(t, "bob", state.Identity.UserID)
	assert.True(t, state.Empty())
	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Empty(t, remote.carts["bob"])
}
