// Package sessiontest provides in-memory collaborators for session.Manager tests.
package sessiontest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/loopverse/campus/core/session"
	"github.com/loopverse/campus/core/user"
)

// ErrUnavailable simulates a transport failure.
var ErrUnavailable = errors.New("remote unavailable")

// Auth is a scripted session.AuthClient.
// Funcs left nil behave like a reachable provider holding no session.
type Auth struct {
	GetSessionFunc func(ctx context.Context) (*session.RemoteSession, error)
	SignInFunc     func(ctx context.Context, email, pwd string) (*session.RemoteSession, error)
	SignUpFunc     func(ctx context.Context, email, pwd string, metadata map[string]string) (*session.RemoteUser, error)
	SignOutFunc    func(ctx context.Context) error

	mu          sync.Mutex
	subscribers map[int]func(session.AuthChange)
	nextSubID   int
	calls       map[string]int
	blocked     chan struct{}
	releaseOnce sync.Once
}

var _ session.AuthClient = (*Auth)(nil) // interface compliance check

func NewAuth() *Auth {
	return &Auth{
		subscribers: make(map[int]func(session.AuthChange)),
		calls:       make(map[string]int),
		blocked:     make(chan struct{}),
	}
}

func (a *Auth) called(name string) {
	a.mu.Lock()
	a.calls[name]++
	a.mu.Unlock()
}

// Calls returns how many times the named method ran.
func (a *Auth) Calls(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[name]
}

// Block makes remote calls hang until Release.
func (a *Auth) Block(ctx context.Context) error {
	select {
	case <-a.blocked:
		return ErrUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Auth) Release() {
	a.releaseOnce.Do(func() { close(a.blocked) })
}

func (a *Auth) GetSession(ctx context.Context) (*session.RemoteSession, error) {
	a.called("GetSession")
	if a.GetSessionFunc != nil {
		return a.GetSessionFunc(ctx)
	}
	return nil, nil
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, pwd string) (*session.RemoteSession, error) {
	a.called("SignInWithPassword")
	if a.SignInFunc != nil {
		return a.SignInFunc(ctx, email, pwd)
	}
	return nil, session.ErrInvalidCredentials
}

func (a *Auth) SignUp(ctx context.Context, email, pwd string, metadata map[string]string) (*session.RemoteUser, error) {
	a.called("SignUp")
	if a.SignUpFunc != nil {
		return a.SignUpFunc(ctx, email, pwd, metadata)
	}
	return nil, ErrUnavailable
}

func (a *Auth) SignOut(ctx context.Context) error {
	a.called("SignOut")
	if a.SignOutFunc != nil {
		return a.SignOutFunc(ctx)
	}
	return nil
}

func (a *Auth) OnAuthStateChange(fn func(session.AuthChange)) session.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSubID
	a.nextSubID++
	a.subscribers[id] = fn
	return session.SubscriptionFunc(func() {
		a.mu.Lock()
		delete(a.subscribers, id)
		a.mu.Unlock()
	})
}

// Subscribers returns the number of live auth state subscriptions.
func (a *Auth) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscribers)
}

// Emit delivers change to every subscriber synchronously.
func (a *Auth) Emit(change session.AuthChange) {
	a.mu.Lock()
	fns := make([]func(session.AuthChange), 0, len(a.subscribers))
	for _, fn := range a.subscribers {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// RemoteSessionFor builds a valid remote session for a user.
func RemoteSessionFor(id, email, name string) *session.RemoteSession {
	return &session.RemoteSession{
		AccessToken: "token-" + id,
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		User:        session.RemoteUser{ID: id, Email: email, Metadata: map[string]string{"name": name}},
	}
}

// Profiles is an in-memory session.ProfileStore.
type Profiles struct {
	InsertErr error
	GetErr    error

	mu       sync.Mutex
	rows     map[string]user.Profile
	inserted chan user.NewProfile
}

var _ session.ProfileStore = (*Profiles)(nil) // interface compliance check

func NewProfiles() *Profiles {
	return &Profiles{
		rows:     make(map[string]user.Profile),
		inserted: make(chan user.NewProfile, 16),
	}
}

// Put stores a profile row. Empty name or role are stored as null.
func (p *Profiles) Put(id, email, name string, role user.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rows[id] = user.Profile{
		ID:    id,
		Email: email,
		Name:  null.NewString(name, name != ""),
		Role:  null.NewString(string(role), role != user.RoleNone),
	}
}

func (p *Profiles) GetProfile(_ context.Context, id string) (user.Profile, error) {
	if p.GetErr != nil {
		return user.Profile{}, p.GetErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prof, ok := p.rows[id]
	if !ok {
		return user.Profile{}, user.ErrProfileNotFound
	}
	return prof, nil
}

func (p *Profiles) InsertProfile(_ context.Context, np user.NewProfile) error {
	defer func() { p.inserted <- np }()
	if p.InsertErr != nil {
		return p.InsertErr
	}
	p.Put(np.ID, np.Email, np.Name, np.Role)
	return nil
}

// Inserted returns the next attempted insert, or false after timeout.
func (p *Profiles) Inserted(timeout time.Duration) (user.NewProfile, bool) {
	select {
	case np := <-p.inserted:
		return np, true
	case <-time.After(timeout):
		return user.NewProfile{}, false
	}
}

// Notifier is a session.Notifier handing out a fixed token.
type Notifier struct {
	Token string
	Err   error

	mu        sync.Mutex
	registers int
	received  map[int]func(session.Notification)
	responses map[int]func(session.NotificationResponse)
	nextID    int
}

var _ session.Notifier = (*Notifier)(nil) // interface compliance check

func NewNotifier(token string) *Notifier {
	return &Notifier{
		Token:     token,
		received:  make(map[int]func(session.Notification)),
		responses: make(map[int]func(session.NotificationResponse)),
	}
}

func (n *Notifier) RegisterForPushNotifications(context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.registers++
	return n.Token, n.Err
}

func (n *Notifier) Registrations() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registers
}

// Listeners returns the number of live received and response listeners.
func (n *Notifier) Listeners() (received, responses int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.received), len(n.responses)
}

func (n *Notifier) AddNotificationReceivedListener(fn func(session.Notification)) session.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.received[id] = fn
	return session.SubscriptionFunc(func() {
		n.mu.Lock()
		delete(n.received, id)
		n.mu.Unlock()
	})
}

func (n *Notifier) AddNotificationResponseReceivedListener(fn func(session.NotificationResponse)) session.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.responses[id] = fn
	return session.SubscriptionFunc(func() {
		n.mu.Lock()
		delete(n.responses, id)
		n.mu.Unlock()
	})
}

// Navigator records the routes it was sent to.
type Navigator struct {
	mu     sync.Mutex
	routes []string
}

func (nav *Navigator) Navigate(route string) {
	nav.mu.Lock()
	nav.routes = append(nav.routes, route)
	nav.mu.Unlock()
}

func (nav *Navigator) Routes() []string {
	nav.mu.Lock()
	defer nav.mu.Unlock()
	return append([]string(nil), nav.routes...)
}

// Theme records the applied theme flags.
type Theme struct {
	mu      sync.Mutex
	applied []bool
}

func (th *Theme) ApplyTheme(dark bool) {
	th.mu.Lock()
	th.applied = append(th.applied, dark)
	th.mu.Unlock()
}

func (th *Theme) Applied() []bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	return append([]bool(nil), th.applied...)
}

// Entry is a logged message.
type Entry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records log entries.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the recorded entries of level, or all of them when level is empty.
func (l *Logger) Entries(level string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// FailingStore is a core.KVStore whose every call fails with Err.
type FailingStore struct {
	Err error
}

func (s FailingStore) GetItem(context.Context, string) (string, error) { return "", s.Err }
func (s FailingStore) SetItem(context.Context, string, string) error   { return s.Err }
func (s FailingStore) RemoveItem(context.Context, string) error        { return s.Err }
