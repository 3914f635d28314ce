package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"remindme/internal/database"
	"remindme/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real Postgres when REMINDME_TEST_DATABASE_URL is
// set. The reminders table is truncated before each test.
func newIntegrationRepository(t *testing.T) ReminderRepository {
	t.Helper()

	url := os.Getenv("REMINDME_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("REMINDME_TEST_DATABASE_URL not set")
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	pool, err := database.Connect(ctx, url, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool, logger))
	truncate(t, pool)

	return NewReminderRepository(pool, time.UTC)
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "TRUNCATE reminders RESTART IDENTITY")
	require.NoError(t, err)
}

func TestIntegration_RoundTrip(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	trigger := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

	created, err := repo.Create(ctx, models.Reminder{
		UserID: "user-1", ChannelID: "chan-1", MessageID: "msg-1", Message: "test message", TriggerTime: trigger,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	due, err := repo.FindDue(ctx, trigger.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, created, due[0])

	notYet, err := repo.FindDue(ctx, trigger)
	require.NoError(t, err)
	assert.Empty(t, notYet, "trigger time equal to now is not due")
}

func TestIntegration_FindDueIdempotent(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, models.Reminder{
			UserID: "user", ChannelID: "chan", MessageID: fmt.Sprint(i), TriggerTime: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	now := base.Add(3 * time.Hour)
	first, err := repo.FindDue(ctx, now)
	require.NoError(t, err)
	second, err := repo.FindDue(ctx, now)
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestIntegration_DeleteDue(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		_, err := repo.Create(ctx, models.Reminder{
			UserID: "user", ChannelID: "chan", MessageID: fmt.Sprint(i), TriggerTime: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	now := base.Add(2 * time.Hour)
	found, err := repo.FindDue(ctx, now)
	require.NoError(t, err)

	n, err := repo.DeleteDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(len(found)), n)

	remaining, err := repo.FindDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	later, err := repo.FindDue(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, later, 2)
}

func TestIntegration_ConcurrentCreateDistinctIDs(t *testing.T) {
	repo := newIntegrationRepository(t)
	ctx := context.Background()
	trigger := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	const n = 20
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := repo.Create(ctx, models.Reminder{
				UserID: fmt.Sprintf("user-%d", i), ChannelID: "chan", MessageID: "msg", TriggerTime: trigger,
			})
			assert.NoError(t, err)
			ids[i] = r.ID
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}

	due, err := repo.FindDue(ctx, trigger.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, n)
}
