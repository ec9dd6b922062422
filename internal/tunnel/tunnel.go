package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// RoleConnector is the role the tunnel module fills for the monitor.
const RoleConnector = "connector"

// Provider is implemented by plugins that hand out a Connector.
type Provider interface {
	Connector() Connector
}

// Module implements the tunnel plugin.
type Module struct {
	logger    *zap.Logger
	cfg       Config
	journal   *Journal
	connector *JournalConnector

	maintenanceInterval time.Duration

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new tunnel plugin instance.
func New() *Module {
	return &Module{maintenanceInterval: time.Hour}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "tunnel",
		Version:     "0.1.0",
		Description: "Secure tunnel connector with attempt journal",
		Roles:       []string{RoleConnector},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal tunnel config: %w", err)
		}
	}
	if m.cfg.Backend == "" {
		m.cfg.Backend = BackendNone
	}

	backend, err := NewConnector(m.cfg)
	if err != nil {
		return err
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "tunnel", migrations()); err != nil {
			return fmt.Errorf("tunnel migrations: %w", err)
		}
		m.journal = NewJournal(deps.Store.DB())
	}

	var pub plugin.Publisher
	if deps.Bus != nil {
		pub = deps.Bus
	}
	m.connector = NewJournalConnector(backend, m.cfg.Backend, m.journal, pub, m.logger)

	m.logger.Info("tunnel module initialized",
		zap.String("backend", m.cfg.Backend),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Bool("journal", m.journal != nil),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.Timeout < 0 {
		return fmt.Errorf("tunnel timeout must not be negative, got %s", m.cfg.Timeout)
	}
	if m.cfg.JournalRetention < 0 {
		return fmt.Errorf("tunnel journal_retention must not be negative, got %s", m.cfg.JournalRetention)
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if m.journal != nil && m.cfg.JournalRetention > 0 {
		m.startMaintenance()
	}
	m.logger.Info("tunnel module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("tunnel module stopped")
	return nil
}

// Connector returns the journaled connector. Nil before Init.
func (m *Module) Connector() Connector {
	if m.connector == nil {
		return nil
	}
	return m.connector
}

// Health implements plugin.HealthChecker. The module is degraded while the
// last attempt failed.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	details := map[string]string{"backend": m.cfg.Backend}
	if m.connector == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized", Details: details}
	}
	last := m.connector.Last()
	if last == nil {
		return plugin.HealthStatus{Status: "healthy", Details: details}
	}
	details["last_action"] = string(last.Action)
	details["last_attempt"] = last.FinishedAt.UTC().Format(time.RFC3339)
	if !last.Success {
		return plugin.HealthStatus{Status: "degraded", Message: last.Detail, Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// startMaintenance prunes journal entries past the retention window.
// Callers hold m.mu.
func (m *Module) startMaintenance() {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.maintenanceInterval)
		defer ticker.Stop()

		m.runMaintenance(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runMaintenance(ctx)
			}
		}
	}()
}

func (m *Module) runMaintenance(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deleted, err := m.journal.DeleteBefore(ctx, time.Now().Add(-m.cfg.JournalRetention))
	if err != nil {
		m.logger.Warn("failed to prune tunnel journal", zap.Error(err))
		return
	}
	if deleted > 0 {
		m.logger.Info("pruned tunnel journal", zap.Int64("count", deleted))
	}
}
