package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/madalinioana/guess-the-drawing/domain"
	"github.com/madalinioana/guess-the-drawing/migrations"
	"github.com/madalinioana/guess-the-drawing/storage"
)

var repo *storage.PostgresRepo

func TestMain(m *testing.M) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine3.22",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testusername"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	migrations.Migrate(connString)

	repo, err = storage.NewPostgresRepo(ctx, connString)
	if err != nil {
		panic(err)
	}

	code := m.Run()

	// Cleanup
	postgresContainer.Terminate(ctx)
	os.Exit(code)
}

func seedUser(t *testing.T, ctx context.Context, username string) string {
	t.Helper()
	var id string
	err := repo.GetPool().QueryRow(ctx,
		"INSERT INTO users (username) VALUES ($1) RETURNING id", username).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestPostgresRepo_GetUserById(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the seeded user with zeroed counters", func(t *testing.T) {
		id := seedUser(t, ctx, "alice")

		user, err := repo.GetUserById(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, id, user.Id)
		assert.Equal(t, "alice", user.Username)
		assert.NotEmpty(t, user.Avatar)
		assert.Zero(t, user.GamesPlayed)
		assert.Zero(t, user.TotalScore)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repo.GetUserById(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestPostgresRepo_IncrementStats(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the deltas", func(t *testing.T) {
		id := seedUser(t, ctx, "bob")

		err := repo.IncrementStats(ctx, id, map[string]int{
			domain.StatGamesPlayed:    1,
			domain.StatCorrectGuesses: 1,
			domain.StatTotalScore:     7,
		})
		require.NoError(t, err)

		user, err := repo.GetUserById(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, user.GamesPlayed)
		assert.Equal(t, 1, user.CorrectGuesses)
		assert.Equal(t, 7, user.TotalScore)
		assert.Zero(t, user.DrawingsCompleted)
	})

	t.Run("accumulates across rounds", func(t *testing.T) {
		id := seedUser(t, ctx, "carol")

		require.NoError(t, repo.IncrementStats(ctx, id, map[string]int{domain.StatTotalScore: 4}))
		require.NoError(t, repo.IncrementStats(ctx, id, map[string]int{domain.StatTotalScore: 6}))

		user, err := repo.GetUserById(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 10, user.TotalScore)
	})

	t.Run("rejects fields outside the allow-list", func(t *testing.T) {
		id := seedUser(t, ctx, "dave")

		err := repo.IncrementStats(ctx, id, map[string]int{
			"username":                1,
			domain.StatCorrectGuesses: 1,
		})
		assert.ErrorIs(t, err, domain.ErrUnknownStatField)

		// Nothing was applied.
		user, getErr := repo.GetUserById(ctx, id)
		require.NoError(t, getErr)
		assert.Zero(t, user.CorrectGuesses)
	})

	t.Run("unknown account id", func(t *testing.T) {
		err := repo.IncrementStats(ctx, "00000000-0000-0000-0000-000000000000",
			map[string]int{domain.StatGamesPlayed: 1})
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("empty increments map is a no-op", func(t *testing.T) {
		err := repo.IncrementStats(ctx, "not-even-a-uuid", nil)
		assert.NoError(t, err)
	})
}
