package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/domain/repository"
	"marketchat/pkg/errors"
)

type sqliteUserRepository struct {
	store *SQLiteStore
}

func NewSQLiteUserRepository(store *SQLiteStore) repository.UserRepository {
	return &sqliteUserRepository{store: store}
}

const userColumns = `id, first_name, last_name, chat_display_name, avatar_url, is_active, created_at, updated_at`

func scanUser(row rowScanner) (*entity.User, error) {
	var (
		u         entity.User
		isActive  int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.ChatDisplayName, &u.AvatarURL, &isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.IsActive = isActive == 1
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func (r *sqliteUserRepository) Create(ctx context.Context, user *entity.User) error {
	if user.ID == "" {
		return errors.Validation("user id is required", nil)
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.store.sqlDB.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   chat_display_name = excluded.chat_display_name,
		   avatar_url = excluded.avatar_url,
		   is_active = excluded.is_active,
		   updated_at = excluded.updated_at`,
		user.ID, user.FirstName, user.LastName, user.ChatDisplayName, user.AvatarURL,
		boolToInt(user.IsActive), toMillis(now), toMillis(now),
	)
	if err != nil {
		return storeError("Failed to create user", err)
	}
	return nil
}

func (r *sqliteUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := scanUser(r.store.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("User", err)
	}
	if err != nil {
		return nil, storeError("Failed to get user", err)
	}
	return u, nil
}

func (r *sqliteUserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	out := make(map[string]*entity.User, len(ids))
	set := idSet(ids)
	delete(set, "")
	if len(set) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(set))
	for id := range set {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	rows, err := r.store.sqlDB.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, storeError("Failed to get users", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeError("Failed to scan user", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("Failed to iterate users", err)
	}
	return out, nil
}

func (r *sqliteUserRepository) SetChatDisplayName(ctx context.Context, id, displayName string) error {
	res, err := r.store.sqlDB.ExecContext(ctx,
		`UPDATE users SET chat_display_name = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(displayName), toMillis(time.Now()), id)
	if err != nil {
		return storeError("Failed to update display name", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("User", nil)
	}
	return nil
}
