package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/tunnel"
	"go.uber.org/zap"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateProbing    State = "probing"
)

// Operator-facing notices.
const (
	NoticeConnecting    = "Establishing secure connection..."
	NoticeConnected     = "Connection established! Checking APIs..."
	noticeFailedPrefix  = "Connection failed: "
	noticeDisconnectErr = "Disconnect failed: "
)

// EndpointProber checks one endpoint. *Prober implements it.
type EndpointProber interface {
	Probe(ctx context.Context, e Endpoint) (ProbeResult, error)
}

// Session is the controller view served to clients.
type Session struct {
	State     State     `json:"state"`
	Active    bool      `json:"active"`
	Session   uint64    `json:"session"`
	Notice    string    `json:"notice,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// ControllerOptions tune a Controller. Zero values are valid.
type ControllerOptions struct {
	NoticeTTL       time.Duration
	RefreshInterval time.Duration // only used for Stats
	Logger          *zap.Logger
	// OnSession is called outside the controller lock after every session change.
	OnSession func(Session)
}

// Controller drives the connect, probe and disconnect lifecycle:
// idle -> connecting -> probing -> idle.
type Controller struct {
	registry  *Registry
	store     *StatusStore
	prober    EndpointProber
	connector tunnel.Connector
	opts      ControllerOptions
	logger    *zap.Logger

	base      context.Context
	closeBase context.CancelFunc
	wg        sync.WaitGroup
	flagMu    sync.Mutex

	mu         sync.Mutex
	state      State
	stopping   bool
	gen        uint64 // bumped by every Start and Stop; stale connects compare against it
	sessionCtx context.Context
	endSession context.CancelFunc
	notice     string
	noticeGen  uint64
	lastError  string
	changedAt  time.Time
}

// NewController wires the lifecycle around store, prober and connector.
func NewController(reg *Registry, store *StatusStore, prober EndpointProber, connector tunnel.Connector, opts ControllerOptions) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Controller{
		registry:  reg,
		store:     store,
		prober:    prober,
		connector: connector,
		opts:      opts,
		logger:    logger,
		base:      base,
		closeBase: cancel,
		state:     StateIdle,
		changedAt: time.Now().UTC(),
	}
}

// Start connects the tunnel and, on success, probes every endpoint. It blocks
// until the connector returns and reports whether an attempt was made; a
// Start while connecting or probing does nothing. Connector failures are
// surfaced through Status, never returned.
func (c *Controller) Start(ctx context.Context) bool {
	gen, sctx, ok := c.begin()
	if !ok {
		return false
	}
	c.connect(ctx, gen, sctx)
	return true
}

// StartAsync is Start with the connect running in the background. The state
// change to connecting has happened when it returns.
func (c *Controller) StartAsync(ctx context.Context) bool {
	gen, sctx, ok := c.begin()
	if !ok {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.connect(ctx, gen, sctx)
	}()
	return true
}

func (c *Controller) begin() (uint64, context.Context, bool) {
	c.mu.Lock()
	if c.state != StateIdle || c.stopping || c.base.Err() != nil {
		c.mu.Unlock()
		return 0, nil, false
	}
	c.gen++
	gen := c.gen
	c.sessionCtx, c.endSession = context.WithCancel(c.base)
	sctx := c.sessionCtx
	c.state = StateConnecting
	c.lastError = ""
	c.setNoticeLocked(NoticeConnecting, 0)
	view := c.sessionLocked()
	c.mu.Unlock()

	c.logger.Info("connecting tunnel", zap.Uint64("session", view.Session))
	c.emit(view)
	return gen, sctx, true
}

func (c *Controller) connect(ctx context.Context, gen uint64, sctx context.Context) {
	cctx, cancel := context.WithCancel(sctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	_, err := c.connector.Connect(cctx)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Info("ignoring connect result from a stopped session", zap.Error(err))
		return
	}

	if err != nil {
		// Stay in connecting behind the stopping guard until the reset is
		// done, or a new Start could fan out under the session it bumps.
		cause := tunnel.Cause(err)
		c.stopping = true
		c.endSession()
		c.sessionCtx, c.endSession = nil, nil
		c.mu.Unlock()

		c.logger.Warn("tunnel connect failed", zap.Error(err))
		c.store.ResetAll()

		c.mu.Lock()
		c.state = StateIdle
		c.stopping = false
		c.lastError = cause
		c.setNoticeLocked(noticeFailedPrefix+cause, 0)
		view := c.sessionLocked()
		c.mu.Unlock()

		c.emit(view)
		return
	}

	c.state = StateProbing
	c.setNoticeLocked(NoticeConnected, c.opts.NoticeTTL)
	session := c.store.Session()
	view := c.sessionLocked()
	c.mu.Unlock()

	c.logger.Info("tunnel connected, probing endpoints",
		zap.Uint64("session", session),
		zap.Int("endpoints", c.registry.Len()),
	)
	c.emit(view)
	c.fanOut(sctx, session)
}

// Stop cancels in-flight probes, disconnects the tunnel and resets every
// endpoint to its default. The reset happens even when the disconnect
// fails. It reports whether there was anything to stop.
func (c *Controller) Stop(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == StateIdle || c.stopping {
		c.mu.Unlock()
		return false
	}
	c.stopping = true
	c.gen++
	if c.endSession != nil {
		c.endSession()
	}
	c.sessionCtx, c.endSession = nil, nil
	c.mu.Unlock()

	_, err := c.connector.Disconnect(ctx)
	session := c.store.ResetAll()

	c.mu.Lock()
	c.state = StateIdle
	c.stopping = false
	if err != nil {
		c.lastError = tunnel.Cause(err)
		c.setNoticeLocked(noticeDisconnectErr+c.lastError, c.opts.NoticeTTL)
	} else {
		c.setNoticeLocked("", 0)
	}
	view := c.sessionLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("tunnel disconnect failed, state reset anyway", zap.Error(err), zap.Uint64("session", session))
	} else {
		c.logger.Info("tunnel disconnected", zap.Uint64("session", session))
	}
	c.emit(view)
	return true
}

// Toggle starts when idle and stops otherwise. Start runs in the background.
func (c *Controller) Toggle(ctx context.Context) State {
	if c.State() == StateIdle {
		c.StartAsync(ctx)
	} else {
		c.Stop(ctx)
	}
	return c.State()
}

// RefreshAll probes every endpoint again without touching the connector.
// Probes outlive ctx; they end with the current session (or Close when
// idle).
func (c *Controller) RefreshAll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	pctx := c.base
	if c.sessionCtx != nil {
		pctx = c.sessionCtx
	}
	c.mu.Unlock()

	c.fanOut(pctx, c.store.Session())
}

// ToggleExpanded flips the disclosure flag of one endpoint.
func (c *Controller) ToggleExpanded(id string) (EndpointStatus, error) {
	return c.toggleFlag(id, func(rec StatusRecord) StatusPatch {
		return StatusPatch{Expanded: boolPtr(!rec.Expanded)}
	})
}

// ToggleRawData flips whether the raw payload is shown for a secured
// endpoint. Unsecured endpoints return ErrNotSecured.
func (c *Controller) ToggleRawData(id string) (EndpointStatus, error) {
	ep, ok := c.registry.Get(id)
	if !ok {
		return EndpointStatus{}, fmt.Errorf("%w: %q", ErrUnknownEndpoint, id)
	}
	if !ep.Secured {
		return EndpointStatus{}, fmt.Errorf("%w: %q", ErrNotSecured, id)
	}
	return c.toggleFlag(id, func(rec StatusRecord) StatusPatch {
		return StatusPatch{ShowRawData: boolPtr(!rec.ShowRawData)}
	})
}

// toggleFlag merges the patch flip builds from the current record. Toggles
// are serialized on flagMu.
func (c *Controller) toggleFlag(id string, flip func(StatusRecord) StatusPatch) (EndpointStatus, error) {
	c.flagMu.Lock()
	defer c.flagMu.Unlock()

	rec, err := c.store.Get(id)
	if err != nil {
		return EndpointStatus{}, err
	}
	if err := c.store.Merge(id, flip(rec)); err != nil {
		return EndpointStatus{}, err
	}
	rec, err = c.store.Get(id)
	if err != nil {
		return EndpointStatus{}, err
	}
	ep, _ := c.registry.Get(id)
	return newEndpointStatus(ep, rec), nil
}

// fanOut probes every endpoint in its own goroutine. Results are merged
// only while session is current.
func (c *Controller) fanOut(ctx context.Context, session uint64) {
	for _, e := range c.registry.List() {
		applied, err := c.store.MergeSession(session, e.ID, StatusPatch{Checking: boolPtr(true)})
		if err != nil || !applied {
			continue
		}
		c.wg.Add(1)
		go func(e Endpoint) {
			defer c.wg.Done()
			c.probeOne(ctx, session, e)
		}(e)
	}
}

func (c *Controller) probeOne(ctx context.Context, session uint64, e Endpoint) {
	res, err := c.prober.Probe(ctx, e)
	if err != nil {
		c.logger.Error("probe rejected endpoint", zap.String("endpoint_id", e.ID), zap.Error(err))
		res = ProbeResult{Error: err.Error(), CheckedAt: time.Now().UTC()}
	}

	applied, err := c.store.MergeSession(session, e.ID, StatusPatch{Result: &res, Checking: boolPtr(false)})
	switch {
	case err != nil:
		c.logger.Error("merge probe result", zap.String("endpoint_id", e.ID), zap.Error(err))
	case !applied:
		c.logger.Debug("discarding probe result from superseded session",
			zap.String("endpoint_id", e.ID),
			zap.Uint64("session", session),
		)
	case !res.Connected:
		c.logger.Debug("endpoint unreachable", zap.String("endpoint_id", e.ID), zap.String("error", res.Error))
	}
}

// Wait blocks until every in-flight probe and background connect is done.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close abandons in-flight work and waits for it. The controller cannot be
// started again afterwards.
func (c *Controller) Close() {
	c.closeBase()
	c.wg.Wait()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the session view.
func (c *Controller) Status() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

// Stats returns statistics derived from the current snapshot.
func (c *Controller) Stats() Stats {
	return ComputeStats(c.registry, c.store.Snapshot(), c.opts.RefreshInterval)
}

// Records returns every endpoint with its status in registry order.
func (c *Controller) Records() []EndpointStatus {
	return c.store.Records()
}

// Record returns one endpoint with its status.
func (c *Controller) Record(id string) (EndpointStatus, error) {
	rec, err := c.store.Get(id)
	if err != nil {
		return EndpointStatus{}, err
	}
	ep, _ := c.registry.Get(id)
	return newEndpointStatus(ep, rec), nil
}

// setNoticeLocked replaces the notice and, for a positive ttl, clears it
// later unless it changed in between.
func (c *Controller) setNoticeLocked(notice string, ttl time.Duration) {
	c.notice = notice
	c.noticeGen++
	c.changedAt = time.Now().UTC()
	if notice == "" || ttl <= 0 {
		return
	}
	gen := c.noticeGen
	time.AfterFunc(ttl, func() {
		c.mu.Lock()
		if c.noticeGen != gen {
			c.mu.Unlock()
			return
		}
		c.notice = ""
		c.noticeGen++
		c.changedAt = time.Now().UTC()
		view := c.sessionLocked()
		c.mu.Unlock()
		c.emit(view)
	})
}

func (c *Controller) sessionLocked() Session {
	return Session{
		State:     c.state,
		Active:    c.state != StateIdle,
		Session:   c.store.Session(),
		Notice:    c.notice,
		LastError: c.lastError,
		ChangedAt: c.changedAt,
	}
}

func (c *Controller) emit(s Session) {
	if c.opts.OnSession != nil {
		c.opts.OnSession(s)
	}
}
