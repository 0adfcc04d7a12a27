package main

import (
	"context"
	"time"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

type newUserArgs struct {
	uname, email, name, teamID, pwd string
	isAdmin                         bool
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, args newUserArgs) (user.User, error) {
	uname := core.CleanString(args.uname, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if err != user.ErrNotFound {
			return user.User{}, err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			Roles:     []string{},
			CreatedAt: now,
		}
	}
	if name := core.CleanString(args.name); name != "" {
		usr.Name = name
	}
	if teamID := core.CleanString(args.teamID); teamID != "" {
		usr.TeamID = teamID
	}
	if args.isAdmin {
		usr.Roles = []string{user.RoleAdminOwner}
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(args.pwd); err != nil {
		return user.User{}, err
	}
	return cli.usrRepo.UpdateOrCreateUser(ctx, usr)
}
