package cartsync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// EngineDeps enumerates collaborators required to construct an Engine.
type EngineDeps struct {
	Remote RemoteStore
	Local  *LocalCache
	// Dispatcher is optional; when nil the engine starts and owns one.
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// Engine owns the cart state for one session and keeps the local cache and the remote cart in
// step with it.
type Engine struct {
	remote         RemoteStore
	local          *LocalCache
	dispatcher     *Dispatcher
	ownsDispatcher bool
	logger         *zap.Logger

	// transition serialises identity changes.
	transition sync.Mutex

	mu    sync.Mutex
	state State

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewEngine wires dependencies into an Engine. The engine starts anonymous and empty.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Remote == nil {
		return nil, errors.New("cartsync: remote store is required")
	}
	if deps.Local == nil {
		return nil, errors.New("cartsync: local cache is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &Engine{
		remote:     deps.Remote,
		local:      deps.Local,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("cartsync"),
		subs:       make(map[int]func(State)),
	}
	if engine.dispatcher == nil {
		dispatcher, err := NewDispatcher(deps.Remote, WithDispatcherLogger(engine.logger))
		if err != nil {
			return nil, err
		}
		engine.dispatcher = dispatcher
		engine.ownsDispatcher = true
	}
	return engine, nil
}

// Identity returns the session the cart currently belongs to.
func (e *Engine) Identity() Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Identity
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Subscribe registers fn to receive every new state. The returned func unregisters it.
func (e *Engine) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
		})
	}
}

// Hydrate loads the cart for id. Authenticated sessions prefer a non-empty remote cart, then the
// user's local cache. Anonymous sessions only read the anonymous local cache.
func (e *Engine) Hydrate(ctx context.Context, id Identity) State {
	e.transition.Lock()
	defer e.transition.Unlock()

	var strategies []Strategy
	if id.IsAuthenticated() {
		strategies = []Strategy{
			e.remoteStrategy(id.UserID),
			e.localStrategy(id.CacheKey(), false),
		}
	} else {
		strategies = []Strategy{e.localStrategy(AnonymousKey, false)}
	}
	res, name := FirstMatch(ctx, strategies...)
	e.logger.Debug("cart hydrated",
		zap.Stringer("identity", id),
		zap.String("strategy", name),
		zap.Int("lines", len(res.Lines)),
	)
	return e.adopt(ctx, id, res)
}

// Login moves the session to userID. The cart is chosen from, in order: the user's non-empty
// remote cart, the user's local cache (pushed to remote), the in-memory anonymous cart (pushed to
// remote and cached locally), or an empty cart. Lines held for another signed-in user are never
// carried over.
func (e *Engine) Login(ctx context.Context, userID string) State {
	id := Authenticated(userID)
	if !id.IsAuthenticated() {
		e.logger.Warn("login without user id ignored")
		return e.Snapshot()
	}

	e.transition.Lock()
	defer e.transition.Unlock()

	e.mu.Lock()
	previous := e.state.Identity
	current := cloneLines(e.state.Lines)
	e.mu.Unlock()

	strategies := []Strategy{
		e.remoteStrategy(id.UserID),
		e.localStrategy(id.CacheKey(), true),
	}
	switch {
	case !previous.IsAuthenticated():
		strategies = append(strategies, memoryStrategy(current))
	case previous != id:
		e.logger.Warn("login over another member's session; previous cart left behind",
			zap.Stringer("previous", previous), userField(id.UserID))
	}

	res, name := FirstMatch(ctx, strategies...)
	if len(res.Lines) > 0 {
		res.SaveLocal = true
	}
	e.logger.Info("cart reconciled on login",
		userField(id.UserID),
		zap.String("strategy", name),
		zap.Int("lines", len(res.Lines)),
	)
	return e.adopt(ctx, id, res)
}

// Logout empties the cart, clears the user's remote cart and drops both local caches. An anonymous
// session has nothing to log out of and is left untouched.
func (e *Engine) Logout(ctx context.Context) State {
	e.transition.Lock()
	defer e.transition.Unlock()

	e.mu.Lock()
	previous := e.state.Identity
	if !previous.IsAuthenticated() {
		snap := e.state.clone()
		e.mu.Unlock()
		return snap
	}
	e.state = State{Identity: Anonymous()}
	e.dispatchClear(previous.UserID)
	e.local.Remove(ctx, previous.CacheKey())
	e.local.Remove(ctx, AnonymousKey)
	snap := e.state.clone()
	e.mu.Unlock()

	e.logger.Info("cart reset on logout", zap.Stringer("identity", previous))
	e.notify(snap)
	return snap
}

// AddLine merges line into the cart, increasing the quantity of an existing line with the same
// product, size and colour. Lines without a positive product id or with a negative price are
// ignored.
func (e *Engine) AddLine(ctx context.Context, line Line) State {
	if !line.valid() {
		e.logger.Warn("invalid cart line ignored",
			zap.Int("productId", line.ProductID),
			zap.Stringer("unitPrice", line.UnitPrice),
		)
		return e.Snapshot()
	}
	return e.mutate(ctx, func(lines []Line) ([]Line, bool) {
		return addLine(lines, line), true
	})
}

// RemoveLine removes every line of productID matched by sel.
func (e *Engine) RemoveLine(ctx context.Context, productID int, sel Selector) State {
	return e.mutate(ctx, func(lines []Line) ([]Line, bool) {
		return removeLines(lines, productID, sel)
	})
}

// SetQuantity sets the quantity of every line of productID matched by sel. Quantities below one
// are ignored.
func (e *Engine) SetQuantity(ctx context.Context, productID, quantity int, sel Selector) State {
	return e.mutate(ctx, func(lines []Line) ([]Line, bool) {
		return setQuantity(lines, productID, quantity, sel)
	})
}

// Clear empties the cart for the current session.
func (e *Engine) Clear(ctx context.Context) State {
	e.mu.Lock()
	id := e.state.Identity
	e.state.Lines = nil
	if id.IsAuthenticated() {
		e.dispatchClear(id.UserID)
	}
	e.local.Remove(ctx, id.CacheKey())
	snap := e.state.clone()
	e.mu.Unlock()

	e.notify(snap)
	return snap
}

// HandleTransition reacts to a session change reported by the session manager.
func (e *Engine) HandleTransition(ctx context.Context, t Transition) State {
	switch t.Kind {
	case TransitionLogin:
		return e.Login(ctx, t.UserID)
	case TransitionLogout:
		return e.Logout(ctx)
	default:
		e.logger.Warn("unknown session transition", zap.String("kind", string(t.Kind)))
		return e.Snapshot()
	}
}

// Flush waits for queued remote writes to be attempted.
func (e *Engine) Flush(ctx context.Context) error {
	return e.dispatcher.Flush(ctx)
}

// Close flushes remote writes and stops the dispatcher if the engine created it.
func (e *Engine) Close(ctx context.Context) error {
	if e.ownsDispatcher {
		return e.dispatcher.Close(ctx)
	}
	return e.dispatcher.Flush(ctx)
}

func (e *Engine) mutate(ctx context.Context, apply func([]Line) ([]Line, bool)) State {
	e.mu.Lock()
	next, changed := apply(e.state.Lines)
	if !changed {
		snap := e.state.clone()
		e.mu.Unlock()
		return snap
	}
	e.state.Lines = next
	e.persistLocked(ctx)
	snap := e.state.clone()
	e.mu.Unlock()

	e.notify(snap)
	return snap
}

// persistLocked mirrors the current state to the local cache and, for members, the remote cart.
// An empty cart removes the local entry. Callers hold e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	id := e.state.Identity
	if len(e.state.Lines) == 0 {
		e.local.Remove(ctx, id.CacheKey())
	} else {
		e.local.Save(ctx, id.CacheKey(), e.state.Lines)
	}
	if id.IsAuthenticated() {
		e.dispatchPush(id.UserID, e.state.Lines)
	}
}

func (e *Engine) adopt(ctx context.Context, id Identity, res Resolution) State {
	e.mu.Lock()
	e.state = State{Identity: id, Lines: cloneLines(res.Lines)}
	if res.SaveLocal {
		e.local.Save(ctx, id.CacheKey(), e.state.Lines)
	}
	if res.PushRemote && id.IsAuthenticated() {
		e.dispatchPush(id.UserID, e.state.Lines)
	}
	snap := e.state.clone()
	e.mu.Unlock()

	e.notify(snap)
	return snap
}

func (e *Engine) dispatchPush(userID string, lines []Line) {
	if err := e.dispatcher.Push(userID, lines); err != nil {
		e.logger.Warn("remote cart push not scheduled", userField(userID), errorField(err))
	}
}

func (e *Engine) dispatchClear(userID string) {
	if err := e.dispatcher.Clear(userID); err != nil {
		e.logger.Warn("remote cart clear not scheduled", userField(userID), errorField(err))
	}
}

func (e *Engine) notify(state State) {
	e.subsMu.Lock()
	fns := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()

	for _, fn := range fns {
		fn(state.clone())
	}
}
