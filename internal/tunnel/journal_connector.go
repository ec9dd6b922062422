package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/HerbHall/tunnelwatch/pkg/plugin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Connector = (*JournalConnector)(nil)

// JournalConnector decorates a backend: every attempt is journaled, counted
// and announced on the event bus. Errors from the backend pass through
// unchanged.
type JournalConnector struct {
	next    Connector
	backend string
	journal *Journal         // nil disables persistence
	bus     plugin.Publisher // nil disables events
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	last *Entry
}

// NewJournalConnector wraps next. journal and bus may be nil.
func NewJournalConnector(next Connector, backend string, journal *Journal, bus plugin.Publisher, logger *zap.Logger) *JournalConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalConnector{
		next:    next,
		backend: backend,
		journal: journal,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

func (j *JournalConnector) Connect(ctx context.Context) (Outcome, error) {
	return j.record(ctx, ActionConnect, j.next.Connect)
}

func (j *JournalConnector) Disconnect(ctx context.Context) (Outcome, error) {
	return j.record(ctx, ActionDisconnect, j.next.Disconnect)
}

// Last returns the most recent attempt, or nil if none was made.
func (j *JournalConnector) Last() *Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return nil
	}
	e := *j.last
	return &e
}

func (j *JournalConnector) record(ctx context.Context, action Action, fn func(context.Context) (Outcome, error)) (Outcome, error) {
	started := j.now()
	out, err := fn(ctx)
	finished := j.now()

	entry := Entry{
		ID:         uuid.New().String(),
		Action:     action,
		Backend:    j.backend,
		Success:    err == nil,
		Output:     out.Output,
		Detail:     out.Detail,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: float64(finished.Sub(started)) / float64(time.Millisecond),
	}
	if err != nil {
		entry.Detail = Cause(err)
	}

	attemptsTotal.WithLabelValues(string(action), resultLabel(entry.Success)).Inc()

	fields := []zap.Field{
		zap.String("action", string(action)),
		zap.String("backend", j.backend),
		zap.Float64("duration_ms", entry.DurationMs),
	}
	if err != nil {
		j.logger.Warn("tunnel attempt failed", append(fields, zap.Error(err))...)
	} else {
		j.logger.Info("tunnel attempt succeeded", fields...)
	}

	j.mu.Lock()
	j.last = &entry
	j.mu.Unlock()

	// The caller's context may already be cancelled by a Stop; the journal
	// entry is still written.
	bg := context.WithoutCancel(ctx)
	if j.journal != nil {
		if jerr := j.journal.Insert(bg, &entry); jerr != nil {
			j.logger.Warn("failed to journal tunnel attempt", zap.Error(jerr))
		}
	}
	if j.bus != nil {
		_ = j.bus.Publish(bg, plugin.Event{
			Topic:     topicFor(entry),
			Source:    "tunnel",
			Timestamp: finished,
			Payload:   entry,
		})
	}
	return out, err
}
