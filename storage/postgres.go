package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madalinioana/guess-the-drawing/domain"
)

// statColumns is the closed set of counters the stats sink may touch.
var statColumns = map[string]bool{
	domain.StatGamesPlayed:       true,
	domain.StatGamesWon:          true,
	domain.StatTotalScore:        true,
	domain.StatCorrectGuesses:    true,
	domain.StatDrawingsCompleted: true,
}

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &PostgresRepo{pool: pool}, nil
}

func (repo *PostgresRepo) Close() {
	repo.pool.Close()
}

func (repo *PostgresRepo) GetPool() *pgxpool.Pool {
	return repo.pool
}

func (repo *PostgresRepo) GetUserById(ctx context.Context, id string) (domain.User, error) {
	user := domain.User{Id: id}

	row := repo.pool.QueryRow(ctx,
		`SELECT username, avatar, games_played, games_won, total_score, correct_guesses, drawings_completed
		 FROM users WHERE id = $1`, id)

	err := row.Scan(&user.Username, &user.Avatar, &user.GamesPlayed, &user.GamesWon,
		&user.TotalScore, &user.CorrectGuesses, &user.DrawingsCompleted)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return domain.User{}, domain.ErrUserNotFound
		case ctx.Err() != nil:
			return domain.User{}, err
		default:
			return domain.User{}, fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
		}
	}

	return user, nil
}

// IncrementStats applies the round-end counter deltas for one account.
// Field names outside the allow-list are rejected before any SQL runs.
func (repo *PostgresRepo) IncrementStats(ctx context.Context, accountID string, increments map[string]int) error {
	if len(increments) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(increments))
	args := []any{accountID}
	for field, delta := range increments {
		if !statColumns[field] {
			return fmt.Errorf("%w: %s", domain.ErrUnknownStatField, field)
		}
		args = append(args, delta)
		assignments = append(assignments, fmt.Sprintf("%s = %s + $%d", field, field, len(args)))
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(assignments, ", "))

	tag, err := repo.pool.Exec(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// NoopStats satisfies the stats sink when no database is configured.
type NoopStats struct{}

func (NoopStats) IncrementStats(context.Context, string, map[string]int) error { return nil }
