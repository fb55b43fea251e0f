package console

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"staffconsole/internal/config"
	iconsole "staffconsole/internal/console"
	"staffconsole/internal/logging"
	"staffconsole/internal/metrics"
	"staffconsole/internal/screen"
)

type Options struct {
	ConfigPath string
	Addr       string
	Insecure   bool
	Initial    string
	LogLevel   string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "", "path to staffconsole.yaml")
	fs.StringVar(&opt.Addr, "addr", "", "identity service address (overrides config)")
	fs.BoolVar(&opt.Insecure, "insecure", false, "skip TLS verification (recommended only for localhost/self-signed)")
	fs.StringVar(&opt.Initial, "initial", "", "screen to open: login|dashboard|admin/addnew|staff/addnew")
	fs.StringVar(&opt.LogLevel, "log-level", "", "log level: debug|info|warning|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	if a := strings.TrimSpace(opt.Addr); a != "" {
		cfg.Server.Addr = strings.TrimRight(a, "/")
	}
	if opt.LogLevel != "" {
		cfg.Log.Level = opt.LogLevel
	}
	initial, ok := screen.Parse(opt.Initial)
	if !ok {
		return fmt.Errorf("unknown screen: %s", opt.Initial)
	}

	// The terminal belongs to the UI, so logs only go to a file.
	w, closeLog, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	lg, _, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		JSON:        cfg.Log.JSON,
		Writer:      w,
		Discard:     w == nil,
		DefaultSlog: true,
	})
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics listener failed", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
		defer srv.Close()
	}

	insecure := opt.Insecure || iconsole.RequireInsecureByDefault(cfg.Server.Addr)
	client, err := iconsole.NewClient(cfg, insecure, lg, m)
	if err != nil {
		return err
	}
	app, err := iconsole.NewApp(iconsole.Deps{
		API:     client,
		Config:  cfg,
		Logger:  lg,
		Metrics: m,
		Initial: initial,
		Addr:    cfg.Server.Addr,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(iconsole.NewModel(ctx, app), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
