package session

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

const defaultName = "User"

// Bootstrap restores the Session at process start, from the remote session first and the local cache second.
// A remote session redirects to its dashboard, a cached one does not.
// Failures are logged and leave the Manager signed out.
func (m *Manager) Bootstrap(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.booting = false
		m.mu.Unlock()
	}()

	gen := m.next()
	m.loadTheme(ctx)
	m.restore(ctx, gen)
	m.subscribe()
}

func (m *Manager) restore(ctx context.Context, gen uint64) {
	rs, err := m.auth.GetSession(ctx)
	if err != nil {
		m.logger.Error("getting remote session", err)
	}

	if rs != nil {
		sess := m.sessionFromRemote(ctx, rs.User)
		if err = m.commit(ctx, gen, sess, true); err != nil {
			m.logger.Debug("remote session superseded", err)
			return
		}
		m.initializeNotifications(ctx)
		m.nav.Navigate(DashboardRoute(sess.Role))
		return
	}

	sess, ok := m.cachedSession(ctx)
	if !ok {
		return
	}
	if err = m.commit(ctx, gen, sess, false); err != nil {
		m.logger.Debug("cached session superseded", err)
		return
	}
	m.logger.Info("restored session from local storage", map[string]interface{}{"email": sess.Email})
	m.initializeNotifications(ctx)
}

func (m *Manager) subscribe() {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.closed || m.authSub != nil {
		return
	}
	m.authSub = m.auth.OnAuthStateChange(m.handleAuthChange)
}

// handleAuthChange follows the remote auth state. SIGNED_IN is ignored while an interactive
// sign-in/sign-up runs or when the Session is not a remote one. SIGNED_OUT always clears.
func (m *Manager) handleAuthChange(change AuthChange) {
	ctx := context.Background()

	switch change.Event {
	case EventSignedIn:
		if change.Session == nil {
			return
		}
		m.mu.Lock()
		if m.inflight > 0 || (m.session != nil && m.session.Source != SourceRemote) {
			m.mu.Unlock()
			m.logger.Debug("ignoring SIGNED_IN event", map[string]interface{}{"user_id": change.Session.User.ID})
			return
		}
		m.generation++
		gen := m.generation
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(ctx, m.opts.SignInTimeout)
		defer cancel()
		sess := m.sessionFromRemote(ctx, change.Session.User)
		if err := m.commit(ctx, gen, sess, true); err != nil {
			m.logger.Debug("SIGNED_IN event superseded", err)
		}

	case EventSignedOut:
		_ = m.clear(ctx, m.next(), UserKey, UserRoleKey)
	}
}

// sessionFromRemote builds a Session from the remote user and its profile row.
func (m *Manager) sessionFromRemote(ctx context.Context, ru RemoteUser) Session {
	prof, err := m.profiles.GetProfile(ctx, ru.ID)
	if err != nil && !errors.Is(err, user.ErrProfileNotFound) {
		m.logger.Warn("fetching profile", err, map[string]interface{}{"user_id": ru.ID})
	}

	sess := Session{ID: ru.ID, Email: ru.Email, Source: SourceRemote}
	switch {
	case prof.Name.Valid && prof.Name.String != "":
		sess.Name = prof.Name.String
	default:
		sess.Name = metadataName(ru)
	}
	sess.Role = user.RoleStudent
	if prof.Role.Valid {
		if role, ok := user.ParseRole(prof.Role.String); ok {
			sess.Role = role
		}
	}
	return sess
}

func metadataName(ru RemoteUser) string {
	if name := core.CleanString(ru.Metadata["name"]); name != "" {
		return name
	}
	return defaultName
}

// localSession synthesizes a Session when the remote provider cannot be used.
func (m *Manager) localSession(email, name string, role user.Role) Session {
	if name == "" {
		name = defaultName
	}
	return Session{
		ID:     strconv.FormatInt(m.nowFunc().UnixMilli(), 10),
		Email:  email,
		Name:   name,
		Role:   role,
		Source: SourceLocal,
	}
}

// establish commits a freshly signed-in Session and registers for notifications.
func (m *Manager) establish(ctx context.Context, gen uint64, sess Session) (Session, error) {
	if err := m.commit(ctx, gen, sess, true); err != nil {
		return Session{}, err
	}
	m.initializeNotifications(ctx)
	return sess, nil
}

// SignIn signs a user in. Identities of the injected IdentityProvider never reach the remote provider.
// The remote call races the sign-in timeout and a failure falls back to a local Session
// unless the fallback policy forbids it.
func (m *Manager) SignIn(ctx context.Context, email, pwd string) (Session, error) {
	email = core.CleanString(email)
	gen, done := m.nextInteractive()
	defer done()

	if m.identities != nil {
		if sess, ok := m.identities.Lookup(email, pwd); ok {
			m.logger.Info("demo account signed in locally", map[string]interface{}{"email": sess.Email})
			return m.establish(ctx, gen, sess)
		}
	}

	role := m.selectedRole(ctx)
	if role == user.RoleNone {
		role = user.RoleStudent
	}

	rs, err := race(ctx, m.opts.SignInTimeout, ErrSignInTimeout, func(ctx context.Context) (*RemoteSession, error) {
		return m.auth.SignInWithPassword(ctx, email, pwd)
	})
	if err == nil && rs == nil {
		err = ErrNoUser
	}

	var sess Session
	switch {
	case err == nil:
		sess = Session{ID: rs.User.ID, Email: rs.User.Email, Name: metadataName(rs.User), Role: role, Source: SourceRemote}
		if sess.Email == "" {
			sess.Email = email
		}
	case ctx.Err() != nil:
		return Session{}, ctx.Err()
	case !m.shouldFallback(err):
		m.logger.Warn("remote sign-in failed", err, map[string]interface{}{"email": email})
		return Session{}, errors.Wrap(err, "signing in")
	default:
		m.logger.Warn("remote sign-in failed, using a local session", err, map[string]interface{}{"email": email})
		sess = m.localSession(email, "", role)
	}
	return m.establish(ctx, gen, sess)
}

// SignUp creates an account. The role is the selected role, then role, then student.
// A remote account gets its profile row inserted in the background.
// A local account created after a remote failure is sent to its dashboard.
func (m *Manager) SignUp(ctx context.Context, email, pwd, name string, role user.Role) (Session, error) {
	email = core.CleanString(email)
	name = core.CleanString(name)
	gen, done := m.nextInteractive()
	defer done()

	if selected := m.selectedRole(ctx); selected != user.RoleNone {
		role = selected
	} else if r, ok := user.ParseRole(role.String()); ok {
		role = r
	} else {
		role = user.RoleStudent
	}

	metadata := map[string]string{"name": name, "role": role.String()}
	ru, err := race(ctx, m.opts.SignUpTimeout, ErrSignUpTimeout, func(ctx context.Context) (*RemoteUser, error) {
		return m.auth.SignUp(ctx, email, pwd, metadata)
	})
	if err == nil && ru == nil {
		err = ErrNoUser
	}

	var sess Session
	switch {
	case err == nil:
		sess = Session{ID: ru.ID, Email: ru.Email, Name: name, Role: role, Source: SourceRemote}
		if sess.Email == "" {
			sess.Email = email
		}
		if sess.Name == "" {
			sess.Name = defaultName
		}
		m.insertProfile(ctx, user.NewProfile{ID: sess.ID, Email: sess.Email, Name: name, Role: role})
	case ctx.Err() != nil:
		return Session{}, ctx.Err()
	case !m.shouldFallback(err):
		m.logger.Warn("remote sign-up failed", err, map[string]interface{}{"email": email})
		return Session{}, errors.Wrap(err, "signing up")
	default:
		m.logger.Warn("remote sign-up failed, creating a local account", err, map[string]interface{}{"email": email})
		// an empty reply is not a failure and stays on the current screen
		redirect := !errors.Is(err, ErrNoUser)
		sess, err = m.establish(ctx, gen, m.localSession(email, name, role))
		if err != nil {
			return Session{}, err
		}
		if redirect {
			m.nav.Navigate(DashboardRoute(sess.Role))
		}
		return sess, nil
	}
	return m.establish(ctx, gen, sess)
}

// insertProfile writes the profile row without making the caller wait. Failures are only logged.
func (m *Manager) insertProfile(ctx context.Context, np user.NewProfile) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.SignUpTimeout)
		defer cancel()
		if err := m.profiles.InsertProfile(ctx, np); err != nil {
			m.logger.Error("creating profile in background", err, map[string]interface{}{"user_id": np.ID})
			return
		}
		m.logger.Debug("profile saved", map[string]interface{}{"user_id": np.ID})
	}()
}

// SignOut clears the Session and its cached keys, then signs out of the remote provider.
// Remote failures are logged only.
func (m *Manager) SignOut(ctx context.Context) {
	if err := m.clear(ctx, m.next(), UserKey, UserRoleKey, ProfileKey, SettingsKey); err != nil {
		m.logger.Debug("sign-out superseded", err)
	}
	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Error("remote sign-out", err)
	}
}

// SelectRole remembers the role picked on the role selection screen.
// A Session without a role takes it and is sent to its dashboard.
func (m *Manager) SelectRole(ctx context.Context, role user.Role) error {
	role, ok := user.ParseRole(role.String())
	if !ok {
		return ErrInvalidRole
	}
	m.setItem(ctx, SelectedRoleKey, role.String())

	m.commitMu.Lock()
	m.mu.Lock()
	if m.session == nil || m.session.HasRole() {
		m.mu.Unlock()
		m.commitMu.Unlock()
		return nil
	}
	m.generation++
	sess := *m.session
	sess.Role = role
	m.session = &sess
	m.mu.Unlock()
	m.saveSession(ctx, sess)
	m.commitMu.Unlock()

	m.nav.Navigate(DashboardRoute(role))
	return nil
}

// RequestPasswordReset asks the remote provider to mail a password reset link.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	resetter, ok := m.auth.(PasswordResetter)
	if !ok {
		return ErrNotSupported
	}
	_, err := race(ctx, m.opts.SignInTimeout, ErrSignInTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, resetter.ResetPasswordForEmail(ctx, core.CleanString(email, true /* lower */))
	})
	return err
}
