package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"staffconsole/internal/attachment"
	"staffconsole/internal/form"
	"staffconsole/internal/submit"
	"staffconsole/internal/validate"
)

var fieldLabels = map[string]string{
	form.FirstName:       "First name",
	form.LastName:        "Last name",
	form.Email:           "Email",
	form.Phone:           "Phone",
	form.DOB:             "Date of birth",
	form.Gender:          "Gender",
	form.Password:        "Password",
	form.ConfirmPassword: "Confirm password",
	form.Department:      "Department",
}

var fieldPlaceholders = map[string]string{
	form.Email: "name@example.com",
	form.Phone: "10 digits",
	form.DOB:   validate.DateLayout,
}

// fieldInput is either a text input or a choice among fixed values.
type fieldInput struct {
	name    string
	input   textinput.Model
	choices []string
	choice  int
}

func (f *fieldInput) isChoice() bool { return f.choices != nil }

func (f *fieldInput) value() string {
	if f.isChoice() {
		if f.choice < 0 {
			return ""
		}
		return f.choices[f.choice]
	}
	return f.input.Value()
}

// formView is one mounted data-entry form. It is dropped when the visitor
// leaves the screen.
type formView struct {
	kind    form.Kind
	machine *submit.Machine
	fields  []*fieldInput
	avatar  textinput.Model
	focus   int
	preview string
	busy    bool
}

func newFormView(m *submit.Machine) *formView {
	spec := m.Draft().Spec()
	fv := &formView{kind: spec.Kind, machine: m}
	for _, name := range spec.Fields {
		fi := &fieldInput{name: name, choice: -1}
		switch name {
		case form.Gender:
			fi.choices = validate.Genders
		case form.Department:
			fi.choices = spec.Departments
		default:
			ti := textinput.New()
			ti.Prompt = ""
			ti.Placeholder = fieldPlaceholders[name]
			if name == form.Password || name == form.ConfirmPassword {
				ti.EchoMode = textinput.EchoPassword
			}
			fi.input = ti
		}
		fv.fields = append(fv.fields, fi)
	}
	if spec.AcceptsAttachment() {
		fv.avatar = textinput.New()
		fv.avatar.Prompt = ""
		fv.avatar.Placeholder = "path to image, enter to load"
	}
	fv.setFocus(0)
	return fv
}

func (fv *formView) hasAvatar() bool { return fv.machine.Encoder() != nil }

func (fv *formView) slots() int {
	if fv.hasAvatar() {
		return len(fv.fields) + 1
	}
	return len(fv.fields)
}

func (fv *formView) onAvatar() bool { return fv.hasAvatar() && fv.focus == len(fv.fields) }

func (fv *formView) setFocus(i int) {
	n := fv.slots()
	i = ((i % n) + n) % n
	for _, f := range fv.fields {
		if !f.isChoice() {
			f.input.Blur()
		}
	}
	if fv.hasAvatar() {
		fv.avatar.Blur()
	}
	fv.focus = i
	if fv.onAvatar() {
		fv.avatar.Focus()
		return
	}
	if f := fv.fields[i]; !f.isChoice() {
		f.input.Focus()
	}
}

func (fv *formView) sync(f *fieldInput) {
	_ = fv.machine.Draft().Set(f.name, f.value())
}

// reload copies the draft back into the inputs (after a cleared draft).
func (fv *formView) reload() {
	d := fv.machine.Draft()
	for _, f := range fv.fields {
		v := d.Get(f.name)
		if f.isChoice() {
			f.choice = -1
			for i, c := range f.choices {
				if c == v {
					f.choice = i
				}
			}
			continue
		}
		f.input.SetValue(v)
	}
	if fv.hasAvatar() && fv.machine.Encoder().Current() == nil {
		fv.avatar.SetValue("")
		fv.preview = ""
	}
}

type submitDoneMsg struct {
	kind  form.Kind
	state submit.State
}

type encodeDoneMsg struct {
	kind form.Kind
	path string
	out  attachment.Outcome
}

func submitCmd(ctx context.Context, m *submit.Machine) tea.Cmd {
	kind := m.Draft().Spec().Kind
	return func() tea.Msg {
		return submitDoneMsg{kind: kind, state: m.Submit(ctx)}
	}
}

// encodeCmd starts the encode now, so selection order decides which result
// wins, and waits for it in the command.
func encodeCmd(m *submit.Machine, path string) tea.Cmd {
	kind := m.Draft().Spec().Kind
	p := m.Encoder().Select(path)
	return func() tea.Msg {
		return encodeDoneMsg{kind: kind, path: path, out: p.Wait()}
	}
}

// update handles keys for the form. back is set when the visitor leaves.
func (fv *formView) update(ctx context.Context, msg tea.Msg) (cmd tea.Cmd, back bool) {
	k, isKey := msg.(tea.KeyMsg)
	if isKey {
		switch k.String() {
		case "esc":
			return nil, true
		case "tab", "down":
			fv.setFocus(fv.focus + 1)
			return nil, false
		case "shift+tab", "up":
			fv.setFocus(fv.focus - 1)
			return nil, false
		case "ctrl+s":
			fv.busy = true
			return submitCmd(ctx, fv.machine), false
		case "enter":
			if fv.onAvatar() {
				path := strings.TrimSpace(fv.avatar.Value())
				if path == "" {
					return nil, false
				}
				fv.preview = "encoding " + path + "..."
				return encodeCmd(fv.machine, path), false
			}
			if fv.focus == len(fv.fields)-1 && !fv.hasAvatar() {
				fv.busy = true
				return submitCmd(ctx, fv.machine), false
			}
			fv.setFocus(fv.focus + 1)
			return nil, false
		}
	}

	if fv.onAvatar() {
		fv.avatar, cmd = fv.avatar.Update(msg)
		return cmd, false
	}
	f := fv.fields[fv.focus]
	if f.isChoice() {
		if isKey {
			switch k.String() {
			case "left", "h":
				f.choice--
				if f.choice < 0 {
					f.choice = len(f.choices) - 1
				}
			case "right", "l", " ":
				f.choice = (f.choice + 1) % len(f.choices)
			}
			fv.sync(f)
		}
		return nil, false
	}
	f.input, cmd = f.input.Update(msg)
	fv.sync(f)
	return cmd, false
}

func (fv *formView) onSubmitted(st submit.State) {
	// A submit ignored while another is in flight reports that attempt's state.
	if st.Status == submit.StatusInFlight {
		return
	}
	fv.busy = false
	if st.Status == submit.StatusSucceeded {
		fv.reload()
	}
	if st.Status == submit.StatusFailed && st.Field != "" {
		for i, f := range fv.fields {
			if f.name == st.Field {
				fv.setFocus(i)
			}
		}
	}
}

func (fv *formView) onEncoded(msg encodeDoneMsg) {
	switch {
	case msg.out.Stale:
	case msg.out.Err != nil:
		fv.preview = "rejected: " + msg.out.Err.Error()
	default:
		fv.preview = msg.out.Attachment.Summary()
	}
}

func (fv *formView) view() string {
	var b strings.Builder
	for i, f := range fv.fields {
		cursor := "  "
		if i == fv.focus {
			cursor = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-17s ", cursor, fieldLabels[f.name]+":"))
		if f.isChoice() {
			v := f.value()
			if v == "" {
				v = "select"
			}
			b.WriteString("< " + v + " >")
		} else {
			b.WriteString(f.input.View())
		}
		b.WriteString("\n")
	}
	if fv.hasAvatar() {
		cursor := "  "
		if fv.onAvatar() {
			cursor = "> "
		}
		label := "Avatar:"
		if fv.machine.Draft().Spec().AttachmentRequired {
			label = "Avatar (req.):"
		}
		b.WriteString(fmt.Sprintf("%s%-17s %s\n", cursor, label, fv.avatar.View()))
		preview := fv.preview
		if preview == "" {
			preview = fv.machine.Encoder().Current().Summary()
		}
		b.WriteString("  " + preview + "\n")
	}
	b.WriteString("\n")
	st := fv.machine.State()
	switch {
	case fv.busy || st.Status == submit.StatusInFlight:
		b.WriteString("Submitting...\n")
	case st.Status == submit.StatusFailed:
		b.WriteString("Failed: " + st.Message + "\n")
	}
	b.WriteString("tab/shift+tab=move  left/right=choose  ctrl+s=submit  esc=back\n")
	return b.String()
}
