package devserver

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"staffconsole/internal/config"
	"staffconsole/internal/db"
	idev "staffconsole/internal/devserver"
	"staffconsole/internal/logging"
	"staffconsole/internal/metrics"
)

type Options struct {
	ConfigPath string
	LogLevel   string
	DBPath     string
	Bind       string
	Port       int
	SeedEmail  string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("dev-server", flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.ConfigPath, "config", "", "path to staffconsole.yaml")
	fs.StringVar(&opt.LogLevel, "log-level", "", "log level: debug|info|warning|error")
	fs.StringVar(&opt.DBPath, "db", "", "sqlite database path (overrides config)")
	fs.StringVar(&opt.Bind, "bind", "", "bind address (overrides config)")
	fs.IntVar(&opt.Port, "port", 0, "listen port (overrides config)")
	fs.StringVar(&opt.SeedEmail, "seed-email", "", "email of the first admin account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := config.Load(opt.ConfigPath)
	if err != nil {
		return err
	}
	base := "."
	if opt.ConfigPath != "" {
		base = filepath.Dir(opt.ConfigPath)
	}
	// CLI overrides config.
	if opt.LogLevel != "" {
		c.Log.Level = opt.LogLevel
	}
	if opt.DBPath != "" {
		c.DevServer.DBPath = opt.DBPath
	} else {
		c.DevServer.DBPath = resolvePath(base, c.DevServer.DBPath)
	}
	if opt.Bind != "" {
		c.DevServer.Bind = opt.Bind
	}
	if opt.Port != 0 {
		c.DevServer.Port = opt.Port
	}
	if opt.SeedEmail != "" {
		c.DevServer.SeedEmail = opt.SeedEmail
	}
	seedPassword := firstNonEmpty(os.Getenv("STAFFCONSOLE_SEED_PASSWORD"), c.DevServer.SeedPassword)
	if c.DevServer.SeedEmail != "" && seedPassword == "" {
		return errors.New("seed email set without a password (use STAFFCONSOLE_SEED_PASSWORD)")
	}

	lg, _, err := logging.New(logging.Options{Level: c.Log.Level, JSON: c.Log.JSON, DefaultSlog: true})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(c.DevServer.DBPath), 0o750); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	store, err := db.Open(ctx, c.DevServer.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := idev.New(idev.Options{
		DB:             store,
		Logger:         lg,
		Metrics:        metrics.New(),
		Endpoints:      c.Endpoints,
		Staff:          c.StaffFormOptions(),
		MaxUploadBytes: int64(c.DevServer.MaxUploadMB) << 20,
	})
	if err != nil {
		return err
	}
	if err := srv.Seed(ctx, c.DevServer.SeedEmail, seedPassword); err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, c.DevServerAddr())
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == ":memory:" {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func firstNonEmpty(a, b string) string {
	a = strings.TrimSpace(a)
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}
