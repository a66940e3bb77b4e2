package activitylog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitylog"
	"github.com/hirelane/jobboard-auth/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockedEvent(accountID string, at time.Time) auth.ActivityEvent {
	return auth.ActivityEvent{
		EventType: auth.ActivityEventAccountLocked,
		Actor:     auth.ActorRef{Type: "system"},
		AccountID: accountID,
		FromState: auth.LockoutUnlocked,
		ToState:   auth.LockoutLocked,
		Metadata: map[string]any{
			"reason": "threshold",
		},
		OccurredAt: at,
	}
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	entry := activitylog.NewEntry(lockedEvent("acc-1", at))

	assert.Len(t, entry.ID, 27)
	assert.Equal(t, "system", entry.ActorID)
	assert.Equal(t, string(auth.ActivityEventAccountLocked), entry.Verb)
	assert.Equal(t, "account", entry.ObjectType)
	assert.Equal(t, "acc-1", entry.ObjectID)
	assert.Equal(t, "auth", entry.Channel)
	assert.Equal(t, at, entry.OccurredAt)
	assert.Equal(t, "locked", entry.Metadata["to_state"])
}

func TestNewEntryIDsSortByTime(t *testing.T) {
	early := activitylog.NewEntry(lockedEvent("a", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	late := activitylog.NewEntry(lockedEvent("a", time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC)))

	assert.Less(t, early.ID, late.ID)
}

func TestSQLSink(t *testing.T) {
	ctx := context.Background()
	db, err := persistence.OpenAndMigrate(ctx, persistence.Options{
		DSN: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sink := activitylog.NewSQLSink(db)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Record(ctx, lockedEvent("acc-1", base)))
	require.NoError(t, sink.Record(ctx, lockedEvent("acc-2", base.Add(time.Second))))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{
		EventType:  auth.ActivityEventLoginSuccess,
		Actor:      auth.ActorRef{ID: "acc-1", Type: "user"},
		AccountID:  "acc-1",
		OccurredAt: base.Add(2 * time.Second),
	}))

	t.Run("all newest first", func(t *testing.T) {
		entries, err := sink.List(ctx, activitylog.Query{})
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, string(auth.ActivityEventLoginSuccess), entries[0].Verb)
		assert.Equal(t, "acc-1", entries[2].ObjectID)
	})

	t.Run("filter by object", func(t *testing.T) {
		entries, err := sink.List(ctx, activitylog.Query{ObjectType: "account", ObjectID: "acc-1"})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("filter by verb and limit", func(t *testing.T) {
		entries, err := sink.List(ctx, activitylog.Query{Verb: string(auth.ActivityEventAccountLocked), Limit: 1})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "acc-2", entries[0].ObjectID)
		assert.Equal(t, "threshold", entries[0].Metadata["reason"])
	})
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	pool := activitylog.NewRedisPool(mr.Addr())
	t.Cleanup(func() { _ = pool.Close() })

	sink := activitylog.NewRedisSink(pool,
		activitylog.WithRedisKey("test:activity"),
		activitylog.WithRedisLimit(2),
	)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Record(ctx, lockedEvent(id, base.Add(time.Duration(i)*time.Second))))
	}

	items, err := mr.List("test:activity")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	entries, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ObjectID)
	assert.Equal(t, "b", entries[1].ObjectID)

	t.Run("empty key", func(t *testing.T) {
		other := activitylog.NewRedisSink(pool, activitylog.WithRedisKey("test:empty"))
		entries, err := other.Recent(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("server down", func(t *testing.T) {
		mr.Close()
		err := sink.Record(ctx, lockedEvent("d", base))
		assert.Error(t, err)
	})
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	var seen []string
	boom := errors.New("boom")

	fanout := activitylog.NewFanout(
		auth.ActivitySinkFunc(func(ctx context.Context, e auth.ActivityEvent) error {
			seen = append(seen, "first")
			return boom
		}),
		nil,
		auth.ActivitySinkFunc(func(ctx context.Context, e auth.ActivityEvent) error {
			seen = append(seen, "second")
			return nil
		}),
	)

	err := fanout.Record(ctx, lockedEvent("x", time.Now()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, seen)
	assert.Len(t, fanout, 2)
}
