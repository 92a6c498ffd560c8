package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"timeclock/internal/attendance"
	"timeclock/internal/auth"
)

// DefaultRoster is used when no seed file exists.
var DefaultRoster = []attendance.User{
	{ID: "1", Name: "ANA ROSA"},
	{ID: "2", Name: "ANTONIO"},
	{ID: "3", Name: "MANOLO"},
	{ID: "4", Name: "JUANITO"},
	{ID: "5", Name: "PEPITO"},
}

type seedFile struct {
	Users []attendance.User `yaml:"users"`
}

// LoadSeed reads a YAML roster. A missing file yields DefaultRoster.
func LoadSeed(path string) ([]attendance.User, error) {
	if path == "" {
		return DefaultRoster, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultRoster, nil
	}
	if err != nil {
		return nil, err
	}
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, u := range doc.Users {
		if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Name) == "" {
			return nil, fmt.Errorf("parse %s: user %d needs id and name", path, i)
		}
	}
	return doc.Users, nil
}

// Seed inserts users that are not yet stored. Existing users are left
// untouched so runtime edits survive restarts. Plaintext passwords are
// hashed before they are written.
func Seed(ctx context.Context, st attendance.Store, users []attendance.User) (int, error) {
	added := 0
	for _, u := range users {
		existing, err := st.UserByID(ctx, u.ID)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}
		if u.Password != "" && !auth.IsHash(u.Password) {
			hash, err := auth.HashPassword(u.Password)
			if err != nil {
				return added, fmt.Errorf("hash password for %s: %w", u.ID, err)
			}
			u.Password = hash
		}
		u.Name = strings.TrimSpace(u.Name)
		u.IsClockedIn = false
		u.LastClockIn = nil
		if err := st.PutUser(ctx, u); err != nil {
			return added, fmt.Errorf("store user %s: %w", u.ID, err)
		}
		added++
	}
	return added, nil
}
