package repository

import (
	"context"
	"fmt"

	"github.com/romanzh1/english-tutor/internal/models"
	"github.com/romanzh1/english-tutor/pkg/utils"
)

// GetOrCreateUser returns the user with the given username, creating it on first
// reference. Every call bumps last_active; the level is only used on creation.
func (r DB) GetOrCreateUser(ctx context.Context, username string, level models.Level) (*models.User, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	if level == "" {
		level = models.DefaultLevel
	}
	now := utils.NowUTC()

	query := r.psql.Insert("users").
		Columns("username", "preferred_level", "created_at", "last_active").
		Values(username, level, now, now).
		Suffix("ON CONFLICT (username) DO UPDATE SET last_active = excluded.last_active").
		Suffix("RETURNING user_id")

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, wrap(fmt.Sprintf("build SQL query (username: %s)", username), err)
	}

	var userID int64
	if err = r.QueryRowxContext(ctx, sql, args...).Scan(&userID); err != nil {
		return nil, wrap(fmt.Sprintf("get or create user (username: %s)", username), err)
	}

	return r.GetUser(ctx, userID)
}

func (r DB) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.rebind(`
		SELECT user_id, username, preferred_level, created_at, last_active
		FROM users WHERE user_id = ?
	`)

	var user models.User
	if err := r.GetContext(ctx, &user, query, userID); err != nil {
		return nil, wrap(fmt.Sprintf("get user (user_id: %d)", userID), err)
	}

	return &user, nil
}

func (r DB) UpdateUserLevel(ctx context.Context, userID int64, level models.Level) error {
	ctx, cancel := r.scope(ctx)
	defer cancel()

	query := r.psql.Update("users").
		Set("preferred_level", level).
		Where("user_id = ?", userID)

	sql, args, err := query.ToSql()
	if err != nil {
		return wrap(fmt.Sprintf("build SQL query (user_id: %d, level: %s)", userID, level), err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return wrap(fmt.Sprintf("update user level (user_id: %d, level: %s)", userID, level), err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return wrap(fmt.Sprintf("update user level (user_id: %d)", userID), models.ErrNotFound)
	}
	return nil
}
