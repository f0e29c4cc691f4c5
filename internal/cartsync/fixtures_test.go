package cartsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/localstore"
)

var errRemoteDown = errors.New("remote down")

type pushCall struct {
	userID string
	lines  []Line
}

type fakeRemote struct {
	mu       sync.Mutex
	carts    map[string][]Line
	pushes   []pushCall
	clears   []string
	fetchErr error
	pushErr  error

	// when set, PushCart signals entered and waits on gate
	entered chan struct{}
	gate    chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{carts: make(map[string][]Line)}
}

func (f *fakeRemote) FetchCart(_ context.Context, userID string) ([]Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return cloneLines(f.carts[userID]), nil
}

func (f *fakeRemote) PushCart(ctx context.Context, userID string, lines []Line) error {
	if f.gate != nil {
		f.entered <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushCall{userID: userID, lines: cloneLines(lines)})
	if f.pushErr != nil {
		return f.pushErr
	}
	f.carts[userID] = cloneLines(lines)
	return nil
}

func (f *fakeRemote) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears = append(f.clears, userID)
	delete(f.carts, userID)
	return nil
}

func (f *fakeRemote) seed(userID string, lines ...Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = lines
}

func (f *fakeRemote) pushCalls() []pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pushCall(nil), f.pushes...)
}

func (f *fakeRemote) clearCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clears...)
}

type harness struct {
	engine *Engine
	remote *fakeRemote
	store  *localstore.Memory
	cache  *LocalCache
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	remote := newFakeRemote()
	store := localstore.NewMemory()
	cache, err := NewLocalCache(store, zap.NewNop())
	require.NoError(t, err)
	engine, err := NewEngine(EngineDeps{Remote: remote, Local: cache})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, engine.Close(ctx))
	})
	return &harness{engine: engine, remote: remote, store: store, cache: cache}
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Flush(ctx))
}

func shirt(size, color string) Line {
	return Line{
		ProductID: 1,
		Name:      "Linen Shirt",
		UnitPrice: decimal.RequireFromString("40.00"),
		Quantity:  1,
		Size:      size,
		Color:     color,
		Category:  "men",
	}
}

func product(id int, price string) Line {
	return Line{ProductID: id, Name: "Item", UnitPrice: decimal.RequireFromString(price), Quantity: 1}
}

func keysOf(lines []Line) []LineKey {
	keys := make([]LineKey, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, line.Key())
	}
	return keys
}
