package roulette

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnectionState tracks the controller's relationship with the backend.
type ConnectionState string

const (
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateError      ConnectionState = "error"
)

const defaultProbeTimeout = 5 * time.Second

var errControllerClosed = errors.New("roulette: controller closed")

// Snapshot is the derived view published after every refresh of the active
// scope.
type Snapshot struct {
	Scope       Scope      `json:"-"`
	Results     []Result   `json:"results"`
	Statistics  Statistics `json:"statistics"`
	Consecutive []int      `json:"consecutive_spins"`
}

// Renumber sorts results by timestamp ascending and reassigns spin ranks
// 1..N. Spin is a view-relative rank, never trusted from storage, so every
// refresh passes through here.
func Renumber(results []Result) []Result {
	out := make([]Result, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	for i := range out {
		out[i].Spin = i + 1
	}
	return out
}

// ControllerConfig wires the scope controller.
type ControllerConfig struct {
	Store Store
	// OnSnapshot receives the derived view after every refresh.
	OnSnapshot func(Snapshot)
	// OnState receives connection state transitions with a user-facing
	// message for error states. Optional.
	OnState func(state ConnectionState, message string)
	// ProbeTimeout bounds the one-shot connectivity probe; zero selects the
	// default. The live subscription itself carries no timeout.
	ProbeTimeout time.Duration
	Logger       *zap.Logger
}

// Controller translates the selected scope into queries and subscriptions.
// A single-date scope holds a continuously updating subscription; a range
// scope fetches once. At most one subscription is open at a time: entering a
// new scope cancels the previous one before the next is established.
type Controller struct {
	store        Store
	onSnapshot   func(Snapshot)
	onState      func(ConnectionState, string)
	probeTimeout time.Duration
	logger       *zap.Logger

	mu         sync.Mutex
	state      ConnectionState
	message    string
	cancel     func()
	generation uint64
	scope      Scope
	hasScope   bool
	closed     bool
}

// NewController validates dependencies and builds a Controller in the
// Connecting state.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, newServiceError("roulette.controller.new", "missing_store", errMissingStore)
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Controller{
		store:        cfg.Store,
		onSnapshot:   cfg.OnSnapshot,
		onState:      cfg.OnState,
		probeTimeout: probeTimeout,
		logger:       logger,
		state:        StateConnecting,
	}, nil
}

// SetScope enters a new scope. Any open subscription is cancelled first, so
// no callback carrying the previous scope's data is delivered once the switch
// begins. Live scopes stay subscribed until the next switch or Close; range
// scopes publish a single snapshot.
func (c *Controller) SetScope(ctx context.Context, scope Scope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errControllerClosed
	}
	c.generation++
	generation := c.generation
	previousCancel := c.cancel
	c.cancel = nil
	c.scope = scope
	c.hasScope = true
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	if previousCancel != nil {
		previousCancel()
	}

	if scope.Live() {
		cancel, err := c.store.Subscribe(
			scope.Window(),
			func(results []Result) { c.publish(generation, scope, results) },
			func(err error) { c.fail(generation, err) },
		)
		if err != nil {
			c.fail(generation, err)
			return err
		}
		c.mu.Lock()
		if c.closed || c.generation != generation {
			c.mu.Unlock()
			cancel()
			return nil
		}
		c.cancel = cancel
		c.mu.Unlock()
		return nil
	}

	results, err := c.store.Query(ctx, scope.Window())
	if err != nil {
		c.fail(generation, err)
		return err
	}
	c.publish(generation, scope, results)
	return nil
}

// Retry re-enters the current scope after an error. No-op before the first
// SetScope.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if !c.hasScope || c.closed {
		c.mu.Unlock()
		return nil
	}
	scope := c.scope
	c.mu.Unlock()
	return c.SetScope(ctx, scope)
}

// TestConnection runs an independent connectivity probe. Its outcome feeds
// the shared connection status but does not gate the per-scope subscription.
func (c *Controller) TestConnection(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.store.Probe(probeCtx); err != nil {
		kind := KindOf(err)
		c.logger.Warn("connectivity probe failed",
			zap.String("kind", string(kind)), zap.Error(err))
		c.mu.Lock()
		c.setStateLocked(StateError, UserMessage(kind))
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.setStateLocked(StateConnected, "")
	c.mu.Unlock()
	return nil
}

// State reports the current connection state and, for errors, the
// user-facing message.
func (c *Controller) State() (ConnectionState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.message
}

// Close cancels any open subscription. Safe to call repeatedly.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.generation++
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) publish(generation uint64, scope Scope, results []Result) {
	renumbered := Renumber(results)
	snapshot := Snapshot{
		Scope:       scope,
		Results:     renumbered,
		Statistics:  Aggregate(renumbered),
		Consecutive: sortedSpins(ConsecutiveSpins(renumbered)),
	}

	c.mu.Lock()
	if c.closed || c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnected, "")
	onSnapshot := c.onSnapshot
	c.mu.Unlock()

	if onSnapshot != nil {
		onSnapshot(snapshot)
	}
}

func (c *Controller) fail(generation uint64, err error) {
	kind := KindOf(err)
	c.logger.Error("scope data failed",
		zap.String("kind", string(kind)), zap.Error(err))

	c.mu.Lock()
	if c.closed || c.generation != generation {
		c.mu.Unlock()
		return
	}
	// Stop delivering data until the scope changes or a retry is triggered.
	c.generation++
	cancel := c.cancel
	c.cancel = nil
	c.setStateLocked(StateError, UserMessage(kind))
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// setStateLocked records a transition and notifies the listener. Callers hold
// c.mu; the callback runs inline, so listeners must not call back into the
// controller.
func (c *Controller) setStateLocked(state ConnectionState, message string) {
	if c.state == state && c.message == message {
		return
	}
	c.state = state
	c.message = message
	if c.onState != nil {
		c.onState(state, message)
	}
}

func sortedSpins(set map[int]struct{}) []int {
	spins := make([]int, 0, len(set))
	for spin := range set {
		spins = append(spins, spin)
	}
	sort.Ints(spins)
	return spins
}
