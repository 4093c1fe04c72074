package session

import (
	"context"

	"github.com/loopverse/campus/core/user"
)

type (
	// AuthClient is the remote auth provider.
	AuthClient interface {
		// GetSession returns nil, nil when no session is held.
		GetSession(ctx context.Context) (*RemoteSession, error)
		SignInWithPassword(ctx context.Context, email, pwd string) (*RemoteSession, error)
		// SignUp may return a nil user when the provider accepted the request without creating one.
		SignUp(ctx context.Context, email, pwd string, metadata map[string]string) (*RemoteUser, error)
		SignOut(ctx context.Context) error
		OnAuthStateChange(fn func(AuthChange)) Subscription
	}

	// PasswordResetter is implemented by auth clients able to mail password reset links.
	PasswordResetter interface {
		ResetPasswordForEmail(ctx context.Context, email string) error
	}

	// ProfileStore reads and inserts rows of the remote profiles table.
	// GetProfile returns user.ErrProfileNotFound when no row exists.
	ProfileStore interface {
		GetProfile(ctx context.Context, id string) (user.Profile, error)
		InsertProfile(ctx context.Context, np user.NewProfile) error
	}

	Notifier interface {
		// RegisterForPushNotifications returns an empty token when the device declined.
		RegisterForPushNotifications(ctx context.Context) (string, error)
		AddNotificationReceivedListener(fn func(Notification)) Subscription
		AddNotificationResponseReceivedListener(fn func(NotificationResponse)) Subscription
	}

	// IdentityProvider resolves fixed local identities without calling the remote provider.
	IdentityProvider interface {
		Lookup(email, pwd string) (Session, bool)
	}

	Navigator interface {
		Navigate(route string)
	}

	ThemeApplier interface {
		ApplyTheme(dark bool)
	}

	Subscription interface {
		Unsubscribe()
	}
)

// SubscriptionFunc adapts a function to a Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

type ThemeApplierFunc func(dark bool)

func (f ThemeApplierFunc) ApplyTheme(dark bool) { f(dark) }

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopTheme struct{}

func (nopTheme) ApplyTheme(bool) {}
