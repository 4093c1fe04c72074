//go:build !production

package session

import "github.com/loopverse/campus/core/user"

const demoPassword = "password"

var demoAccounts = []Session{
	{ID: "1", Email: "admin@loopverse.com", Name: "Admin User", Role: user.RoleAdmin},
	{ID: "2", Email: "teacher@loopverse.com", Name: "Teacher User", Role: user.RoleTeacher},
	{ID: "3", Email: "student@loopverse.com", Name: "Student User", Role: user.RoleStudent},
}

// DemoIdentities returns the fixed demo accounts, one per role, sharing the password "password".
// Binaries built with the production tag get nil.
func DemoIdentities() IdentityProvider {
	return NewStaticIdentities(demoPassword, demoAccounts...)
}
