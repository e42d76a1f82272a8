package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id, email, password_hash, role, preferred_categories, created_at, updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u     model.User
		prefs sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &prefs, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if prefs.Valid {
		u.PreferredCategories = &prefs.String
	}
	return u, nil
}

// Create hashes password and inserts the user, returning its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, model.ErrEmailExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
}

// SetPreferredCategories stores ids as a JSON array.  The list is not
// checked against event_categories.
func (r *UserRepo) SetPreferredCategories(ctx context.Context, userID uint64, ids []uint64) error {
	if ids == nil {
		ids = []uint64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET preferred_categories = ? WHERE id = ?", string(raw), userID)
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Unchanged rows report 0 as well.
		if _, err := r.GetByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// PreferredCategories decodes the stored list; a user who never saved
// preferences gets an empty slice.
func (r *UserRepo) PreferredCategories(ctx context.Context, userID uint64) ([]uint64, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return DecodeCategoryIDs(u.PreferredCategories)
}

// DecodeCategoryIDs parses the preferred_categories column.
func DecodeCategoryIDs(raw *string) ([]uint64, error) {
	ids := []uint64{}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(*raw), &ids); err != nil {
		return nil, fmt.Errorf("decode preferred_categories: %w", err)
	}
	return ids, nil
}
