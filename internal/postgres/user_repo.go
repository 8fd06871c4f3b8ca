package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// UserRepo is the Directory Service backed by the application's "User" table.
type UserRepo struct {
	q querier
}

// NewUserRepo - конструктор от пула (*pgxpool.Pool) или транзакции (pgx.Tx)
func NewUserRepo(q querier) *UserRepo {
	return &UserRepo{q: q}
}

// GetUser returns domain.ErrUserNotFound for unknown and deactivated accounts.
func (r *UserRepo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var (
		userID    string
		firstName *string
		lastName  *string
		userType  string
		isActive  bool
	)
	err := r.q.QueryRow(ctx, QueryGetUserByID, id).Scan(&userID, &firstName, &lastName, &userType, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, mapPgError(err)
	}
	if !isActive {
		return domain.User{}, domain.ErrUserNotFound
	}

	return domain.User{
		ID:          userID,
		DisplayName: displayName(firstName, lastName),
		Role:        domain.ParseRole(userType),
	}, nil
}

func displayName(first, last *string) string {
	parts := make([]string, 0, 2)
	for _, p := range []*string{first, last} {
		if p == nil {
			continue
		}
		if s := strings.TrimSpace(*p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
