package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgconn "github.com/jackc/pgx/v5/pgconn"
)

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx,
репозитории только читают, но работают и внутри транзакции приложения
*/
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42P01 - undefined table: схема приложения ещё не накатана
		if pgErr.Code == "42P01" {
			return fmt.Errorf("postgres: schema missing: %w", err)
		}
	}

	return err
}
