package storage

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"vidhub/internal/models"
)

func (s *Storage) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	params, err := params.normalized()
	if err != nil {
		return models.User{}, err
	}
	passwordHash, err := hashPassword(params.Password, s.passwordCost)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Email == params.Email {
			return models.User{}, fmt.Errorf("email %s: %w", params.Email, ErrDuplicate)
		}
		if existing.Username == params.Username {
			return models.User{}, fmt.Errorf("username %s: %w", params.Username, ErrDuplicate)
		}
	}

	user := models.User{
		ID:           newID(),
		Username:     params.Username,
		FullName:     params.FullName,
		Email:        params.Email,
		Avatar:       params.Avatar,
		PasswordHash: passwordHash,
		CreatedAt:    s.now(),
	}
	s.data.Users[user.ID] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, user.ID)
		return models.User{}, err
	}
	return user, nil
}

func (s *Storage) GetUser(ctx context.Context, id string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return user, nil
}

func (s *Storage) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	normalized, _ := CreateUserParams{Username: "-", Email: email}.normalized()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data.Users {
		if user.Email == normalized.Email {
			return user, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
}

// hashPassword returns an empty hash for an empty password so seeded users
// without credentials cannot log in.
func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", nil
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword compares a candidate password against a stored hash.
func CheckPassword(user models.User, candidate string) bool {
	if user.PasswordHash == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(candidate)) == nil
}
