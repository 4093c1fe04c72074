package session

import (
	"context"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

const (
	DefaultSignInTimeout = 8 * time.Second
	DefaultSignUpTimeout = 10 * time.Second
)

// Deps are the collaborators of a Manager.
// Auth, Profiles, Storage and Logger are required. The others are optional.
type Deps struct {
	Auth       AuthClient
	Profiles   ProfileStore
	Storage    core.KVStore
	Logger     core.Logger
	Notifier   Notifier
	Identities IdentityProvider
	Navigator  Navigator
	Theme      ThemeApplier
}

type Options struct {
	SignInTimeout time.Duration
	SignUpTimeout time.Duration
	Fallback      string // one of the core.Fallback* policies
}

func OptionsFromConfig(conf core.SessionConfig) Options {
	return Options{
		SignInTimeout: conf.SignInTimeout,
		SignUpTimeout: conf.SignUpTimeout,
		Fallback:      conf.Fallback,
	}
}

func (o Options) withDefaults() Options {
	if o.SignInTimeout <= 0 {
		o.SignInTimeout = DefaultSignInTimeout
	}
	if o.SignUpTimeout <= 0 {
		o.SignUpTimeout = DefaultSignUpTimeout
	}
	if o.Fallback == "" {
		o.Fallback = core.FallbackAlways
	}
	return o
}

// Manager owns the signed-in Session of one client.
// Every state change takes a new generation and only lands while that generation is current,
// so a late remote answer never overwrites a newer Session.
type Manager struct {
	auth       AuthClient
	profiles   ProfileStore
	store      core.KVStore
	logger     core.Logger
	notifier   Notifier
	identities IdentityProvider
	nav        Navigator
	theme      ThemeApplier
	opts       Options

	mu         sync.RWMutex
	session    *Session
	darkMode   bool
	pushToken  string
	booting    bool
	inflight   int // interactive sign-ins/sign-ups
	generation uint64

	commitMu   sync.Mutex // state change + cache write
	settingsMu sync.Mutex // userSettings read-modify-write

	subMu      sync.Mutex
	authSub    Subscription
	notifySubs []Subscription
	closed     bool

	wg      sync.WaitGroup
	nowFunc func() time.Time
}

func NewManager(deps Deps, opts Options) (*Manager, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Auth, "Auth"),
		vala.IsNotNil(deps.Profiles, "Profiles"),
		vala.IsNotNil(deps.Storage, "Storage"),
		vala.IsNotNil(deps.Logger, "Logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "invalid session dependencies")
	}

	opts = opts.withDefaults()
	switch opts.Fallback {
	case core.FallbackAlways, core.FallbackUnavailable, core.FallbackNever:
	default:
		return nil, errors.Errorf("unknown fallback policy %q", opts.Fallback)
	}

	m := &Manager{
		auth:       deps.Auth,
		profiles:   deps.Profiles,
		store:      deps.Storage,
		logger:     deps.Logger,
		notifier:   deps.Notifier,
		identities: deps.Identities,
		nav:        deps.Navigator,
		theme:      deps.Theme,
		opts:       opts,
		booting:    true,
		nowFunc:    time.Now,
	}
	if m.nav == nil {
		m.nav = nopNavigator{}
	}
	if m.theme == nil {
		m.theme = nopTheme{}
	}
	return m, nil
}

func (m *Manager) Options() Options { return m.opts }

// Session returns a copy of the current Session.
func (m *Manager) Session() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

func (m *Manager) Role() user.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return user.RoleNone
	}
	return m.session.Role
}

func (m *Manager) DarkMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.darkMode
}

func (m *Manager) PushToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pushToken
}

// Loading reports whether Bootstrap has not returned yet or a sign-in/sign-up is running.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.booting || m.inflight > 0
}

// Wait blocks until background work (profile inserts, push registration) is done.
func (m *Manager) Wait() { m.wg.Wait() }

// Close releases the auth and notification subscriptions and waits for background work.
func (m *Manager) Close() {
	m.subMu.Lock()
	m.closed = true
	if m.authSub != nil {
		m.authSub.Unsubscribe()
		m.authSub = nil
	}
	for _, sub := range m.notifySubs {
		sub.Unsubscribe()
	}
	m.notifySubs = nil
	m.subMu.Unlock()

	m.wg.Wait()
}

// next takes a new generation.
func (m *Manager) next() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	return m.generation
}

// nextInteractive takes a new generation for a user-driven operation.
// done must be called once the operation returns.
func (m *Manager) nextInteractive() (gen uint64, done func()) {
	m.mu.Lock()
	m.generation++
	m.inflight++
	gen = m.generation
	m.mu.Unlock()

	return gen, func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}
}

// commit installs sess if gen is still current and writes it to the cache when persist is set.
func (m *Manager) commit(ctx context.Context, gen uint64, sess Session, persist bool) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.session = &sess
	m.mu.Unlock()

	if persist {
		m.saveSession(ctx, sess)
	}
	return nil
}

// clear drops the Session if gen is still current and removes keys from the cache.
func (m *Manager) clear(ctx context.Context, gen uint64, keys ...string) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return ErrSuperseded
	}
	m.session = nil
	m.mu.Unlock()

	m.removeItems(ctx, keys...)
	return nil
}

// shouldFallback tells whether a failed remote call may be replaced by a local Session.
func (m *Manager) shouldFallback(err error) bool {
	switch m.opts.Fallback {
	case core.FallbackNever:
		return false
	case core.FallbackUnavailable:
		return !(errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrRejected) || errors.Is(err, ErrNoUser))
	default:
		return true
	}
}

type result[T any] struct {
	val T
	err error
}

// race waits at most d for fn. fn runs detached from ctx cancellation and is never aborted:
// when the timer wins its result is dropped.
func race[T any](ctx context.Context, d time.Duration, timeoutErr error, fn func(context.Context) (T, error)) (T, error) {
	ch := make(chan result[T], 1)
	go func() {
		val, err := fn(context.WithoutCancel(ctx))
		ch <- result[T]{val, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	var zero T
	select {
	case res := <-ch:
		return res.val, res.err
	case <-timer.C:
		return zero, timeoutErr
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
