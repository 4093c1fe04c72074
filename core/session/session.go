// Package session keeps the signed-in user of a LoopVerse client.
//
// A Manager bootstraps from the remote auth session or the local cache and
// signs users in, up and out. It remembers the theme preference and sends
// each role to its own dashboard. Remote calls race a fixed timeout and fall
// back to local sessions depending on the configured policy.
package session

import (
	"time"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core/user"
)

// Source tells where a Session came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceDemo   Source = "demo"
	SourceLocal  Source = "local-fallback"
)

// Local storage keys.
const (
	UserKey         = "loopverse_user"
	UserRoleKey     = "loopverse_user_role"
	SelectedRoleKey = "selectedRole"
	SettingsKey     = "userSettings"
	ProfileKey      = "userProfile"
)

// Routes
const (
	RouteRoleSelection    = "/roleSelectionScreen"
	RouteAdminDashboard   = "/dashboards/adminDashboard"
	RouteTeacherDashboard = "/dashboards/teacherDashboard"
	RouteStudentDashboard = "/dashboards/studentDashboard"
)

var (
	// errors
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrRejected           = errors.New("request rejected by the server")
	ErrSignInTimeout      = errors.New("login timeout")
	ErrSignUpTimeout      = errors.New("signup timeout")
	ErrNoUser             = errors.New("no user returned")
	ErrSuperseded         = errors.New("superseded by a newer session operation")
	ErrInvalidRole        = errors.New("invalid role")
	ErrNotSupported       = errors.New("not supported by the auth client")
)

// Session is the signed-in user. Role stays empty until one is selected.
type Session struct {
	ID     string    `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   user.Role `json:"role,omitempty"`
	Source Source    `json:"source,omitempty"`
}

func (s Session) HasRole() bool { return s.Role.IsValid() }

// RemoteUser is the identity held by the remote auth provider.
type RemoteUser struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"user_metadata,omitempty"`
}

// RemoteSession is an authenticated session of the remote auth provider.
type RemoteSession struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   int64      `json:"expires_at"` // unix seconds
	User        RemoteUser `json:"user"`
}

func (rs RemoteSession) Expired(now time.Time) bool {
	return rs.ExpiresAt > 0 && now.Unix() >= rs.ExpiresAt
}

// AuthEvent names a remote auth state change.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

type AuthChange struct {
	Event   AuthEvent
	Session *RemoteSession
}

// Notification is a push notification delivered to the device.
type Notification struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt time.Time         `json:"sent_at"`
}

// NotificationResponse is the user's interaction with a Notification.
type NotificationResponse struct {
	Notification Notification `json:"notification"`
	ActionID     string       `json:"action_id"`
}
