package session

import (
	"context"
	"encoding/json"
)

const darkModeKey = "darkMode"

// settings reads the userSettings blob. Unknown fields are kept so other screens' settings survive a theme change.
func (m *Manager) settings(ctx context.Context) map[string]interface{} {
	settings := make(map[string]interface{})
	blob, ok := m.getItem(ctx, SettingsKey)
	if !ok || blob == "" {
		return settings
	}
	if err := json.Unmarshal([]byte(blob), &settings); err != nil {
		m.logger.Warn("discarding unreadable settings", err)
		return make(map[string]interface{})
	}
	return settings
}

func (m *Manager) loadTheme(ctx context.Context) {
	m.settingsMu.Lock()
	settings := m.settings(ctx)
	m.settingsMu.Unlock()

	dark, _ := settings[darkModeKey].(bool)
	m.mu.Lock()
	m.darkMode = dark
	m.mu.Unlock()
	m.theme.ApplyTheme(dark)
}

// ToggleTheme switches the dark mode flag, applies it and merges it into the saved settings.
func (m *Manager) ToggleTheme(ctx context.Context, dark bool) {
	m.mu.Lock()
	m.darkMode = dark
	m.mu.Unlock()
	m.theme.ApplyTheme(dark)

	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()

	settings := m.settings(ctx)
	settings[darkModeKey] = dark
	blob, err := json.Marshal(settings)
	if err != nil {
		m.logger.Error("encoding settings", err)
		return
	}
	m.setItem(ctx, SettingsKey, string(blob))
}
