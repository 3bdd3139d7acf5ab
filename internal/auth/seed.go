package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedUser is one entry of the seed users file. Passwords are plaintext in
// the file and hashed on import.
type SeedUser struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users"`
}

// DefaultSeedUsers is used when no seed file is configured.
func DefaultSeedUsers() []SeedUser {
	return []SeedUser{{
		ID:       "1",
		Name:     "Test User",
		Email:    "test@example.com",
		Password: "password123",
		Role:     DefaultRole,
	}}
}

func LoadSeedUsers(path string) ([]SeedUser, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultSeedUsers(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed users file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode seed users file: %w", err)
	}
	for i, u := range f.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d: email and password are required", i)
		}
	}
	return f.Users, nil
}

// Seed inserts users whose email is not yet in store. It returns the number of
// users created.
func Seed(store UserStore, users []SeedUser) (int, error) {
	created := 0
	for _, su := range users {
		if _, err := store.GetByEmail(su.Email); err == nil {
			continue
		} else if !errors.Is(err, ErrUserNotFound) {
			return created, fmt.Errorf("check seed user %s: %w", su.Email, err)
		}

		hash, err := HashPassword(su.Password)
		if err != nil {
			return created, fmt.Errorf("hash seed user %s: %w", su.Email, err)
		}
		id := su.ID
		if id == "" {
			id = newID()
		}
		role := su.Role
		if role == "" {
			role = DefaultRole
		}
		if err := store.Put(User{
			ID:           id,
			Name:         su.Name,
			Email:        su.Email,
			Role:         role,
			PasswordHash: hash,
		}); err != nil {
			return created, fmt.Errorf("store seed user %s: %w", su.Email, err)
		}
		created++
	}
	return created, nil
}
