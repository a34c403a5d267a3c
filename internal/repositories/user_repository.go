package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"chat-core/internal/apperr"
	"chat-core/internal/models"
)

// UserRepository reads identities; the core only writes last-seen.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	q querier
}

const userColumns = `id, username, last_seen_at, created_at`

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.q.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, apperr.Persistence(err)
	}
	return user, nil
}

// GetUserByUsername fetches a user by username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := r.q.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, apperr.Persistence(err)
	}
	return user, nil
}

// GetUsers fetches the users that exist among userIDs.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []models.User
	if err := r.q.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(userIDs)); err != nil {
		return nil, apperr.Persistence(err)
	}
	return users, nil
}

// UpdateLastSeen records when the user's last connection closed.
func (r *UserRepo) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET last_seen_at=$2 WHERE id=$1`, userID, at)
	return expectOne(res, err, ErrUserNotFound)
}
