// Package create registers one admin or staff record without the UI. It
// drives the same session and submission pipeline as the console.
package create

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"staffconsole/internal/config"
	iconsole "staffconsole/internal/console"
	"staffconsole/internal/form"
	"staffconsole/internal/logging"
	"staffconsole/internal/screen"
	"staffconsole/internal/submit"
)

type Options struct {
	ConfigPath string
	Addr       string
	Insecure   bool
	Kind       string
	Email      string
	Avatar     string
	Fields     fieldFlags
}

// fieldFlags collects repeated -set name=value flags.
type fieldFlags []string

func (f *fieldFlags) String() string { return strings.Join(*f, ",") }

func (f *fieldFlags) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	*f = append(*f, v)
	return nil
}

func Run(args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "", "path to staffconsole.yaml")
	fs.StringVar(&opt.Addr, "addr", "", "identity service address (overrides config)")
	fs.BoolVar(&opt.Insecure, "insecure", false, "skip TLS verification (recommended only for localhost/self-signed)")
	fs.StringVar(&opt.Kind, "kind", "staff", "record kind: admin|staff")
	fs.StringVar(&opt.Email, "login", "", "email of the admin to sign in as")
	fs.StringVar(&opt.Avatar, "avatar", "", "avatar image path (staff only)")
	fs.Var(&opt.Fields, "set", "field value as name=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(opt.Email) == "" {
		return errors.New("-login is required")
	}
	kind, err := form.ParseKind(opt.Kind)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	if a := strings.TrimSpace(opt.Addr); a != "" {
		cfg.Server.Addr = strings.TrimRight(a, "/")
	}
	lg, _, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, DefaultSlog: true})
	if err != nil {
		return err
	}

	insecure := opt.Insecure || iconsole.RequireInsecureByDefault(cfg.Server.Addr)
	client, err := iconsole.NewClient(cfg, insecure, lg, nil)
	if err != nil {
		return err
	}
	app, err := iconsole.NewApp(iconsole.Deps{API: client, Config: cfg, Logger: lg, Initial: screen.Login})
	if err != nil {
		return err
	}
	defer app.Close()

	values, err := parseFields(opt.Fields)
	if err != nil {
		return err
	}
	loginPassword := os.Getenv("STAFFCONSOLE_PASSWORD")
	if loginPassword == "" {
		if loginPassword, err = promptPassword("Login password", false); err != nil {
			return err
		}
	}
	if _, ok := values[form.Password]; !ok {
		pw, err := promptPassword("New record password", true)
		if err != nil {
			return err
		}
		values[form.Password] = pw
		values[form.ConfirmPassword] = pw
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, app, request{
		Kind:          kind,
		Email:         opt.Email,
		LoginPassword: loginPassword,
		Values:        values,
		Avatar:        opt.Avatar,
	}, os.Stdout)
}

type request struct {
	Kind          form.Kind
	Email         string
	LoginPassword string
	Values        map[string]string
	Avatar        string
}

func parseFields(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, _ := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty field name in %q", kv)
		}
		out[name] = value
	}
	return out, nil
}

// execute signs in, fills a fresh form, stages the avatar, and submits once.
func execute(ctx context.Context, app *iconsole.App, req request, out io.Writer) error {
	app.Bootstrap(ctx)
	if err := app.Login(ctx, req.Email, req.LoginPassword); err != nil {
		return fmt.Errorf("login: %s", lastMessage(app, err))
	}

	target := screen.AddStaff
	if req.Kind == form.KindAdmin {
		target = screen.AddAdmin
	}
	app.Router.Navigate(target)
	if d := app.Router.Current(); d.Screen != target {
		return fmt.Errorf("cannot open %s", target.Title())
	}

	m := app.NewForm(req.Kind)
	for name, v := range req.Values {
		if err := m.Draft().Set(name, v); err != nil {
			return err
		}
	}
	if _, ok := req.Values[form.ConfirmPassword]; !ok {
		_ = m.Draft().Set(form.ConfirmPassword, req.Values[form.Password])
	}

	if req.Avatar != "" {
		if m.Encoder() == nil {
			return fmt.Errorf("%s records do not take an avatar", req.Kind)
		}
		res := m.Encoder().Select(req.Avatar).Wait()
		if res.Err != nil {
			return res.Err
		}
		fmt.Fprintln(out, "avatar:", res.Attachment.Summary())
	}

	st := m.Submit(ctx)
	if st.Status != submit.StatusSucceeded {
		if st.Field != "" {
			return fmt.Errorf("%s: %s", st.Field, st.Message)
		}
		return errors.New(st.Message)
	}
	fmt.Fprintln(out, st.Message)
	return nil
}

func lastMessage(app *iconsole.App, err error) string {
	if n, ok := app.Notes.Last(); ok {
		return n.Message
	}
	return err.Error()
}

var stdin = bufio.NewReader(os.Stdin)

// promptPassword reads a secret from the terminal, or from stdin lines when
// not attached to one. Login passwords are not trimmed or confirmed.
func promptPassword(label string, confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			p1b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			p1 := string(p1b)
			if p1 == "" {
				fmt.Fprintln(os.Stderr, "password cannot be empty")
				continue
			}
			if !confirm {
				return p1, nil
			}
			fmt.Fprint(os.Stderr, "Confirm password: ")
			p2b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			if p1 != string(p2b) {
				fmt.Fprintln(os.Stderr, "passwords do not match")
				continue
			}
			return p1, nil
		}
	}

	// Piped input: one line per prompt, confirmation skipped.
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password cannot be empty")
	}
	return line, nil
}
