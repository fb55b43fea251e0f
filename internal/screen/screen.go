// Package screen names the console views and which of them require a session.
package screen

// Screen identifies one console view.
type Screen string

const (
	Login     Screen = "login"
	Dashboard Screen = "dashboard"
	AddAdmin  Screen = "admin/addnew"
	AddStaff  Screen = "staff/addnew"
)

// Landing is where successful logins and submissions end up.
const Landing = Dashboard

// All lists every known screen in menu order.
var All = []Screen{Dashboard, AddAdmin, AddStaff, Login}

// Privileged reports whether s may only render for an authenticated visitor.
func (s Screen) Privileged() bool {
	switch s {
	case Dashboard, AddAdmin, AddStaff:
		return true
	default:
		return false
	}
}

// Title is the heading shown for the screen.
func (s Screen) Title() string {
	switch s {
	case Login:
		return "Login"
	case Dashboard:
		return "Dashboard"
	case AddAdmin:
		return "Add new admin"
	case AddStaff:
		return "Add new staff member"
	default:
		return string(s)
	}
}

// Parse maps a path-like name to a Screen. Unknown names fall back to Landing.
func Parse(name string) (Screen, bool) {
	for _, s := range All {
		if string(s) == name || "/"+string(s) == name {
			return s, true
		}
	}
	if name == "" || name == "/" {
		return Landing, true
	}
	return Landing, false
}
