package session

import "github.com/loopverse/campus/core/user"

var dashboards = map[user.Role]string{
	user.RoleAdmin:   RouteAdminDashboard,
	user.RoleTeacher: RouteTeacherDashboard,
	user.RoleStudent: RouteStudentDashboard,
}

// screens reachable from each dashboard
var roleScreens = map[user.Role][]string{
	user.RoleAdmin: {
		"/admin/manageUsers",
		"/admin/manageCourses",
		"/admin/analytics",
		"/admin/manageEvents",
		"/admin/aiChatbot",
		"/admin/appSettings",
	},
	user.RoleTeacher: {
		"/teacher/liveSessions",
		"/teacher/manageCourses",
		"/teacher/studentProgress",
		"/teacher/events",
		"/teacher/aiAssistant",
		"/teacher/profile",
	},
	user.RoleStudent: {
		"/student/learning",
		"/student/events",
		"/student/progress",
		"/student/gamification",
		"/student/profile",
		"/student/aiSupport",
	},
}

// DashboardRoute returns the dashboard of role, or the role selection screen for a missing or unknown role.
func DashboardRoute(role user.Role) string {
	if route, ok := dashboards[role]; ok {
		return route
	}
	return RouteRoleSelection
}

// AllowedRoutes lists the dashboard and screens reachable by role.
func AllowedRoutes(role user.Role) []string {
	screens, ok := roleScreens[role]
	if !ok {
		return []string{RouteRoleSelection}
	}
	routes := make([]string, 0, len(screens)+1)
	routes = append(routes, dashboards[role])
	return append(routes, screens...)
}

// HasRoleAccess is false without a Session or role, true when nothing is required,
// and otherwise tells whether the current role is one of required.
func (m *Manager) HasRoleAccess(required ...user.Role) bool {
	role := m.Role()
	if !role.IsValid() {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if r == role {
			return true
		}
	}
	return false
}

// CanAccessRoute tells whether the current role reaches route.
func (m *Manager) CanAccessRoute(route string) bool {
	role := m.Role()
	if !role.IsValid() {
		return route == RouteRoleSelection
	}
	for _, r := range AllowedRoutes(role) {
		if r == route {
			return true
		}
	}
	return false
}

// Redirect navigates to the dashboard of the current role.
func (m *Manager) Redirect() string {
	route := DashboardRoute(m.Role())
	m.nav.Navigate(route)
	return route
}
