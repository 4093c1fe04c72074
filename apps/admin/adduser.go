package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

// addUser updates or creates an active user.User with its profile row.
func (cli *commandLine) addUser(email, name, pwd string, role user.Role) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{Email: email, Password: pwd, Name: name, Role: role})
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
	case err != nil:
		return errors.Wrap(err, "finding user by email")
	default:
		if name != "" {
			usr.Name = name
		}
		usr.Role = role
		usr.IsActive = true
		usr.UpdatedAt = time.Now().UTC()
		if err = usr.SetPassword(pwd); err != nil {
			return errors.Wrap(err, "hashing password")
		}
		if usr, err = cli.repo.UpdateUser(ctx, usr); err != nil {
			return errors.Wrap(err, "updating user")
		}
	}

	_, err = cli.usrSvc.CreateProfile(ctx, user.NewProfile{ID: usr.ID, Email: usr.Email, Name: usr.Name, Role: usr.Role})
	if err != nil && !errors.Is(err, user.ErrProfileExists) {
		return errors.Wrap(err, "creating profile")
	}
	return nil
}
