// Package monitor tracks the reachability and security posture of a fixed
// set of API endpoints behind a tunnel that must be connected first.
package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/HerbHall/tunnelwatch/internal/tunnel"
	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Module implements the monitor plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bus    plugin.EventBus

	registry   *Registry
	store      *StatusStore
	controller *Controller
	scheduler  *Scheduler

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new monitor plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "monitor",
		Version:      "0.1.0",
		Description:  "Endpoint status monitoring behind a secure tunnel",
		Dependencies: []string{"tunnel"},
		Required:     true,
		Roles:        []string{"monitoring"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal monitor config: %w", err)
		}
	}
	if len(m.cfg.Endpoints) == 0 {
		m.cfg.Endpoints = DefaultEndpoints()
	}

	reg, err := NewRegistry(m.cfg.Endpoints)
	if err != nil {
		return err
	}
	m.registry = reg
	m.store = NewStatusStore(reg)
	m.store.OnChange(m.publishEndpoint)

	prober := NewProber(m.cfg.ProbeTimeout, map[CheckType]Transport{
		CheckHTTP: NewHTTPTransport(m.cfg.MaxBodyBytes),
		CheckTCP:  NewTCPTransport(),
		CheckICMP: NewICMPTransport(3, m.cfg.ICMPPrivileged),
	})

	m.controller = NewController(reg, m.store, prober, m.resolveConnector(deps.Plugins), ControllerOptions{
		NoticeTTL:       m.cfg.NoticeTTL,
		RefreshInterval: m.cfg.RefreshInterval,
		Logger:          m.logger,
		OnSession:       m.publishSession,
	})
	m.scheduler = NewScheduler(m.controller, m.cfg.RefreshInterval, m.logger)

	m.logger.Info("monitor module initialized",
		zap.Int("endpoints", reg.Len()),
		zap.Duration("refresh_interval", m.cfg.RefreshInterval),
		zap.Duration("probe_timeout", m.cfg.ProbeTimeout),
	)
	return nil
}

// resolveConnector finds the tunnel connector among the registered plugins,
// falling back to one that always succeeds.
func (m *Module) resolveConnector(plugins plugin.PluginResolver) tunnel.Connector {
	if plugins != nil {
		for _, p := range plugins.ResolveByRole(tunnel.RoleConnector) {
			if cp, ok := p.(tunnel.Provider); ok {
				if c := cp.Connector(); c != nil {
					return c
				}
			}
		}
	}
	m.logger.Warn("no tunnel connector available, connecting is a no-op")
	return tunnel.NoopConnector{}
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.scheduler.Start(m.ctx)
	m.logger.Info("monitor module started")
	return nil
}

// Stop disconnects an active tunnel and waits for in-flight probes.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	if m.controller != nil {
		m.controller.Stop(ctx)
		m.controller.Close()
	}
	if cancel != nil {
		cancel()
	}
	m.logger.Info("monitor module stopped")
	return nil
}

// Controller exposes the lifecycle controller.
func (m *Module) Controller() *Controller {
	return m.controller
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.controller == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	s := m.controller.Status()
	details := map[string]string{"state": string(s.State)}
	if s.LastError != "" {
		return plugin.HealthStatus{Status: "degraded", Message: s.LastError, Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// runCtx is the context background work started from handlers runs under.
func (m *Module) runCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

func (m *Module) publishEndpoint(s EndpointStatus) {
	stats := m.controller.Stats()
	recordStats(stats)
	if m.bus == nil {
		return
	}
	ctx := context.Background()
	_ = m.bus.Publish(ctx, plugin.Event{Topic: TopicEndpointUpdated, Source: "monitor", Payload: s})
	_ = m.bus.Publish(ctx, plugin.Event{Topic: TopicStatsUpdated, Source: "monitor", Payload: stats})
}

func (m *Module) publishSession(s Session) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(context.Background(), plugin.Event{Topic: TopicSessionChanged, Source: "monitor", Payload: s})
}
