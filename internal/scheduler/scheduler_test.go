package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment-be/internal/inventory"
	"fulfillment-be/internal/logger"
	"fulfillment-be/internal/outbox"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Run("rejects bad schedule", func(t *testing.T) {
		_, err := New(Job{Name: "broken", Schedule: "every now and then", Run: func(context.Context) error { return nil }})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("descriptor schedules", func(t *testing.T) {
		s, err := New(
			Job{Name: "a", Schedule: "@every 1m", Run: func(context.Context) error { return nil }},
			Job{Name: "b", Schedule: "*/5 * * * *", Run: func(context.Context) error { return nil }},
		)
		require.NoError(t, err)
		assert.Len(t, s.jobs, 2)
	})
}

func TestRunNow(t *testing.T) {
	calls := 0
	s, err := New(Job{Name: "count", Schedule: "@every 1h", Run: func(context.Context) error {
		calls++
		return nil
	}})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background(), "count"))
	assert.Equal(t, 1, calls)

	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestStartStop(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := New(Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})
	require.NoError(t, err)

	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestExecuteLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	defer logger.Replace(zap.New(core))()

	s := &Scheduler{jobs: map[string]Job{}}
	s.execute(Job{Name: "boom", Run: func(context.Context) error { return errors.New("kaput") }})

	entries := logs.FilterMessage("job failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "boom", entries[0].ContextMap()["job"])
}

func TestReaperJob(t *testing.T) {
	ctx := context.Background()
	ledger := inventory.NewMemoryLedger(time.Nanosecond)
	require.NoError(t, ledger.Restock(ctx, 1, 1, 10))

	_, err := ledger.Reserve(ctx, 1, 1, 4)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	job := ReaperJob("@every 1m", ledger, 0)
	assert.Equal(t, "reservation-reaper", job.Name)
	require.NoError(t, job.Run(ctx))

	avail, err := ledger.Available(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, avail)
}

type countingSweeper struct{ calls int }

func (s *countingSweeper) Sweep() int {
	s.calls++
	return 3
}

func TestCacheSweepJob(t *testing.T) {
	sw := &countingSweeper{}
	job := CacheSweepJob("@every 5m", sw)

	assert.Equal(t, "cache-sweep", job.Name)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sw.calls)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) error {
	return errors.New("broker down")
}

func TestRelayJob(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, aggregate_type`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at"}))
	mock.ExpectCommit()

	job := RelayJob("@every 10s", outbox.NewRelay(conn, failingPublisher{}, 0))
	assert.Equal(t, "outbox-relay", job.Name)
	require.NoError(t, job.Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
