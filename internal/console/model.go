package console

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"staffconsole/internal/form"
	"staffconsole/internal/nav"
	"staffconsole/internal/notify"
	"staffconsole/internal/screen"
)

// Model renders App with Bubble Tea. It only shows what the router decides;
// every screen change goes through App.Router.
type Model struct {
	app  *App
	ctx  context.Context
	addr string

	decision nav.Decision
	notes    <-chan notify.Notification
	toasts   []notify.Notification

	spin spinner.Model

	email     textinput.Model
	password  textinput.Model
	loggingIn bool

	menu list.Model
	form *formView
}

type menuItem struct {
	title  string
	desc   string
	target screen.Screen
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// logoutTarget marks the menu entry that signs out instead of navigating.
const logoutTarget screen.Screen = "logout"

// NewModel subscribes to app's notifications and prepares every input.
func NewModel(ctx context.Context, app *App) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	email := textinput.New()
	email.Placeholder = "admin@example.com"
	email.Prompt = "Email:    "
	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.Prompt = "Password: "

	menu := list.New([]list.Item{
		menuItem{title: "Add new admin", desc: "Register another administrator", target: screen.AddAdmin},
		menuItem{title: "Add new staff member", desc: "Register a staff member with department and avatar", target: screen.AddStaff},
		menuItem{title: "Log out", desc: "End the session", target: logoutTarget},
	}, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Dashboard"
	menu.SetShowHelp(false)
	menu.SetFilteringEnabled(false)

	return Model{
		app:      app,
		ctx:      ctx,
		addr:     redactAddr(app.addr),
		decision: nav.Decision{Kind: nav.Loading, Screen: app.Initial()},
		notes:    app.Notes.Subscribe(),
		spin:     sp,
		email:    email,
		password: password,
		menu:     menu,
	}
}

type bootstrapMsg nav.Decision
type navMsg nav.Change
type noteMsg notify.Notification
type tickMsg time.Time
type loginDoneMsg struct{ err error }
type gotoMsg screen.Screen
type logoutDoneMsg struct{}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		bootstrapCmd(m.ctx, m.app),
		waitNav(m.app.Router.Changes()),
		waitNote(m.notes),
		tick(),
	)
}

func bootstrapCmd(ctx context.Context, app *App) tea.Cmd {
	return func() tea.Msg { return bootstrapMsg(app.Bootstrap(ctx)) }
}

func waitNav(ch <-chan nav.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return navMsg(c)
	}
}

func waitNote(ch <-chan notify.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noteMsg(n)
	}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func loginCmd(ctx context.Context, app *App, email, password string) tea.Cmd {
	return func() tea.Msg { return loginDoneMsg{err: app.Login(ctx, email, password)} }
}

func logoutCmd(ctx context.Context, app *App) tea.Cmd {
	return func() tea.Msg {
		_ = app.Logout(ctx)
		return logoutDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.menu.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case bootstrapMsg:
		return m.apply(nav.Decision(msg)), nil
	case navMsg:
		return m.apply(msg.Decision), waitNav(m.app.Router.Changes())
	case noteMsg:
		m.toasts = m.app.Notes.Active(time.Now())
		return m, waitNote(m.notes)
	case tickMsg:
		m.toasts = m.app.Notes.Active(time.Time(msg))
		return m, tick()
	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.password.SetValue("")
			return m, nil
		}
		m.email.SetValue("")
		m.password.SetValue("")
		return m, tea.Tick(m.app.LoginDelay(), func(time.Time) tea.Msg { return gotoMsg(screen.Landing) })
	case gotoMsg:
		m.app.Router.Navigate(screen.Screen(msg))
		return m, nil
	case logoutDoneMsg:
		return m, nil
	case submitDoneMsg:
		if m.form != nil && m.form.kind == msg.kind {
			m.form.onSubmitted(msg.state)
		}
		return m, nil
	case encodeDoneMsg:
		if m.form != nil && m.form.kind == msg.kind {
			m.form.onEncoded(msg)
		}
		return m, nil
	}

	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.decision.Kind != nav.Render {
		return m, nil
	}

	switch m.decision.Screen {
	case screen.Login:
		return m.updateLogin(msg)
	case screen.Dashboard:
		return m.updateDashboard(msg)
	case screen.AddAdmin, screen.AddStaff:
		if m.form == nil {
			return m, nil
		}
		cmd, back := m.form.update(m.ctx, msg)
		if back {
			m.app.Router.Navigate(screen.Dashboard)
		}
		return m, cmd
	}
	return m, nil
}

// apply mounts the screen of d. A form screen gets a fresh instance each
// time it is entered; leaving drops it along with its draft.
func (m Model) apply(d nav.Decision) Model {
	prev := m.decision
	m.decision = d
	if d.Kind != nav.Render {
		return m
	}
	if prev.Kind == nav.Render && prev.Screen == d.Screen {
		return m
	}
	m.form = nil
	switch d.Screen {
	case screen.Login:
		m.email.SetValue("")
		m.password.SetValue("")
		m.password.Blur()
		m.email.Focus()
	case screen.AddAdmin:
		m.form = newFormView(m.app.NewForm(form.KindAdmin))
	case screen.AddStaff:
		m.form = newFormView(m.app.NewForm(form.KindStaff))
	}
	return m
}

func (m Model) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "tab", "shift+tab", "up", "down":
			if m.email.Focused() {
				m.email.Blur()
				m.password.Focus()
			} else {
				m.password.Blur()
				m.email.Focus()
			}
			return m, nil
		case "enter":
			if m.email.Focused() {
				m.email.Blur()
				m.password.Focus()
				return m, nil
			}
			if m.loggingIn {
				return m, nil
			}
			m.loggingIn = true
			return m, loginCmd(m.ctx, m.app, m.email.Value(), m.password.Value())
		}
	}
	var cmd tea.Cmd
	if m.email.Focused() {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) updateDashboard(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.String() {
		case "q":
			return m, tea.Quit
		case "enter":
			it, ok := m.menu.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}
			if it.target == logoutTarget {
				return m, logoutCmd(m.ctx, m.app)
			}
			m.app.Router.Navigate(it.target)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.menu, cmd = m.menu.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("Staff console")
	if m.addr != "" {
		b.WriteString(" (" + m.addr + ")")
	}
	if snap := m.app.Session.Snapshot(); snap.Authenticated && snap.Principal != nil {
		b.WriteString("  signed in as " + snap.Principal.DisplayName())
	}
	b.WriteString("\n\n")

	for _, n := range m.toasts {
		b.WriteString("[" + n.Level.String() + "] " + n.Message + "\n")
	}
	if len(m.toasts) > 0 {
		b.WriteString("\n")
	}

	if m.decision.Kind != nav.Render {
		b.WriteString(m.spin.View() + " Checking session...\n")
		return b.String()
	}

	switch m.decision.Screen {
	case screen.Login:
		b.WriteString("Login\n\n")
		b.WriteString(m.email.View() + "\n")
		b.WriteString(m.password.View() + "\n\n")
		if m.loggingIn {
			b.WriteString(m.spin.View() + " Signing in...\n")
		}
		b.WriteString("tab=switch field  enter=login  ctrl+c=quit\n")
	case screen.Dashboard:
		b.WriteString(m.menu.View())
		b.WriteString("\nenter=open  q=quit\n")
	case screen.AddAdmin, screen.AddStaff:
		b.WriteString(m.decision.Screen.Title() + "\n\n")
		if m.form != nil {
			b.WriteString(m.form.view())
		}
	}
	return b.String()
}

// redactAddr keeps only scheme and host.
func redactAddr(addr string) string {
	if addr == "" {
		return ""
	}
	u, err := url.Parse(addr)
	if err != nil {
		return ""
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host
}

// RequireInsecureByDefault reports whether addr is a loopback address, where
// plain http is allowed without the -insecure flag.
func RequireInsecureByDefault(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
