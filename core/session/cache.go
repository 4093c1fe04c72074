package session

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
	"github.com/loopverse/campus/core/user"
)

// Storage failures are logged and never abort the operation.

func (m *Manager) setItem(ctx context.Context, key, value string) {
	if err := m.store.SetItem(ctx, key, value); err != nil {
		m.logger.Error("writing local storage", err, map[string]interface{}{"key": key})
	}
}

func (m *Manager) getItem(ctx context.Context, key string) (string, bool) {
	val, err := m.store.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, core.ErrItemNotFound) {
			m.logger.Error("reading local storage", err, map[string]interface{}{"key": key})
		}
		return "", false
	}
	return val, true
}

func (m *Manager) removeItems(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := m.store.RemoveItem(ctx, key); err != nil {
			m.logger.Error("clearing local storage", err, map[string]interface{}{"key": key})
		}
	}
}

func (m *Manager) saveSession(ctx context.Context, sess Session) {
	blob, err := json.Marshal(sess)
	if err != nil {
		m.logger.Error("encoding session", err)
		return
	}
	m.setItem(ctx, UserKey, string(blob))
	if sess.HasRole() {
		m.setItem(ctx, UserRoleKey, sess.Role.String())
	}
}

// cachedSession reads the Session saved by a previous run.
// The role key wins over the role stored in the blob.
func (m *Manager) cachedSession(ctx context.Context) (Session, bool) {
	blob, ok := m.getItem(ctx, UserKey)
	if !ok || blob == "" {
		return Session{}, false
	}

	var sess Session
	if err := json.Unmarshal([]byte(blob), &sess); err != nil {
		m.logger.Warn("discarding unreadable cached session", err)
		return Session{}, false
	}
	if sess.ID == "" && sess.Email == "" {
		return Session{}, false
	}
	if sess.Source == "" {
		sess.Source = SourceLocal
	}

	if val, ok := m.getItem(ctx, UserRoleKey); ok {
		if role, valid := user.ParseRole(val); valid {
			sess.Role = role
		}
	}
	if !sess.HasRole() {
		sess.Role = user.RoleNone
	}
	return sess, true
}

// selectedRole returns the role picked on the role selection screen, if any.
func (m *Manager) selectedRole(ctx context.Context) user.Role {
	val, ok := m.getItem(ctx, SelectedRoleKey)
	if !ok {
		return user.RoleNone
	}
	role, valid := user.ParseRole(val)
	if !valid {
		return user.RoleNone
	}
	return role
}
