package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vidhub/internal/models"
)

const userColumns = "id, username, full_name, email, avatar, password_hash, refresh_token, created_at"

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.FullName, &user.Email, &user.Avatar,
		&user.PasswordHash, &user.RefreshToken, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	params, err := params.normalized()
	if err != nil {
		return models.User{}, err
	}
	passwordHash, err := hashPassword(params.Password, r.cfg.PasswordCost)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		ID:           newID(),
		Username:     params.Username,
		FullName:     params.FullName,
		Email:        params.Email,
		Avatar:       params.Avatar,
		PasswordHash: passwordHash,
		CreatedAt:    r.cfg.Clock(),
	}
	_, err = r.pool.Exec(ctx, "INSERT INTO users ("+userColumns+") VALUES ($1, $2, $3, $4, $5, $6, '', $7)",
		user.ID, user.Username, user.FullName, user.Email, user.Avatar, user.PasswordHash, user.CreatedAt)
	if isUniqueViolation(err) {
		return models.User{}, fmt.Errorf("user %s: %w", user.Email, ErrDuplicate)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", id, err)
	}
	return user, nil
}

func (r *postgresRepository) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	normalized, _ := CreateUserParams{Username: "-", Email: email}.normalized()
	user, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", normalized.Email))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", email, err)
	}
	return user, nil
}
