// Package testutil holds fixtures shared by the backend tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loopverse/campus/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateProfile stores the profile row of usr, as clients do right after signing up.
func CreateProfile(t *testing.T, repo user.Repository, usr user.User) user.Profile {
	t.Helper()

	now := time.Now().UTC()
	prof := user.Profile{ID: usr.ID, Email: usr.Email, CreatedAt: now, UpdatedAt: now}
	if usr.Name != "" {
		prof.Name.SetValid(usr.Name)
	}
	if usr.Role != user.RoleNone {
		prof.Role.SetValid(usr.Role.String())
	}
	prof, err := repo.InsertProfile(context.Background(), prof)
	if err != nil {
		t.Fatalf("CreateProfile() failed: %v", err)
	}
	return prof
}
