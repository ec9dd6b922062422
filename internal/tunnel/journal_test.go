package tunnel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/tunnelwatch/internal/event"
	"github.com/HerbHall/tunnelwatch/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func testJournal(t *testing.T) *Journal {
	t.Helper()
	db := testutil.NewStore(t)
	require.NoError(t, db.Migrate(context.Background(), "tunnel", migrations()))
	return NewJournal(db.DB())
}

func TestJournal_InsertAndListRecent(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i, action := range []Action{ActionConnect, ActionDisconnect, ActionConnect} {
		e := &Entry{
			ID:         string(rune('a' + i)),
			Action:     action,
			Backend:    BackendCommand,
			Success:    i != 2,
			Detail:     "attempt",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			DurationMs: 1000,
		}
		require.NoError(t, j.Insert(ctx, e))
	}

	got, err := j.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID, "newest first")
	assert.False(t, got[0].Success)
	assert.Equal(t, ActionDisconnect, got[1].Action)
	assert.True(t, got[1].StartedAt.Equal(base.Add(time.Minute)))
}

func TestJournal_DeleteBefore(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, j.Insert(ctx, &Entry{ID: "old", Action: ActionConnect, Backend: "none", StartedAt: now.Add(-48 * time.Hour), FinishedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, j.Insert(ctx, &Entry{ID: "new", Action: ActionConnect, Backend: "none", StartedAt: now, FinishedAt: now}))

	deleted, err := j.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	left, err := j.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "new", left[0].ID)
}

func TestJournalConnector_RecordsAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockConnector(ctrl)
	gomock.InOrder(
		backend.EXPECT().Connect(gomock.Any()).Return(Outcome{Output: "up"}, nil),
		backend.EXPECT().Disconnect(gomock.Any()).Return(Outcome{}, &Error{Action: ActionDisconnect, Err: ErrCommandFailed, Detail: "still busy"}),
		backend.EXPECT().Disconnect(gomock.Any()).Return(Outcome{Output: "down"}, nil),
	)

	bus := event.NewBus(zap.NewNop())
	rec := testutil.RecordEvents(t, bus)

	j := testJournal(t)
	jc := NewJournalConnector(backend, BackendCommand, j, bus, zap.NewNop())
	ctx := context.Background()

	out, err := jc.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "up", out.Output)

	_, err = jc.Disconnect(ctx)
	var te *Error
	require.ErrorAs(t, err, &te, "backend errors pass through unchanged")

	last := jc.Last()
	require.NotNil(t, last)
	assert.False(t, last.Success)
	assert.Equal(t, "still busy", last.Detail)

	_, err = jc.Disconnect(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{TopicConnected, TopicFailed, TopicDisconnected}, rec.Topics())

	entries, err := j.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, BackendCommand, e.Backend)
	}
}

func TestJournalConnector_CancelledContextStillJournals(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockConnector(ctrl)
	backend.EXPECT().Connect(gomock.Any()).DoAndReturn(func(ctx context.Context) (Outcome, error) {
		return Outcome{}, &Error{Action: ActionConnect, Err: ctx.Err()}
	})

	j := testJournal(t)
	jc := NewJournalConnector(backend, BackendHTTP, j, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := jc.Connect(ctx)
	require.True(t, errors.Is(err, context.Canceled))

	entries, err := j.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJournalConnector_NoJournal(t *testing.T) {
	jc := NewJournalConnector(NoopConnector{}, BackendNone, nil, nil, nil)
	assert.Nil(t, jc.Last())

	_, err := jc.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, jc.Last())
	assert.Equal(t, ActionConnect, jc.Last().Action)
}
