// Package config loads and validates staffconsole YAML configuration.
// It applies defaults so commands can rely on fully populated values.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"staffconsole/internal/form"
	"staffconsole/internal/identityapi"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	// File receives console logs; the terminal belongs to the UI.
	File string `yaml:"file"`
}

// ServerConfig describes how to reach the identity service.
type ServerConfig struct {
	Addr      string        `yaml:"addr"`
	Insecure  bool          `yaml:"insecure"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// SessionConfig holds login settings.
type SessionConfig struct {
	LoginRole  string        `yaml:"login_role"`
	LoginDelay time.Duration `yaml:"login_delay"`
}

// StaffFormConfig tunes the staff-onboarding form.
type StaffFormConfig struct {
	Role          string   `yaml:"role"`
	Departments   []string `yaml:"departments"`
	RequireAvatar bool     `yaml:"require_avatar"`
	MaxAvatarMB   int      `yaml:"max_avatar_mb"`
}

// FormsConfig holds submission settings.
type FormsConfig struct {
	SuccessDelay time.Duration   `yaml:"success_delay"`
	NotifyTTL    time.Duration   `yaml:"notify_ttl"`
	Staff        StaffFormConfig `yaml:"staff"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DevServerConfig holds settings for the local development identity service.
type DevServerConfig struct {
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db_path"`
	MaxUploadMB  int    `yaml:"max_upload_mb"`
	SeedEmail    string `yaml:"seed_email"`
	SeedPassword string `yaml:"seed_password"`
}

// Config mirrors the staffconsole.yaml schema.
type Config struct {
	Log       LogConfig             `yaml:"log"`
	Server    ServerConfig          `yaml:"server"`
	Endpoints identityapi.Endpoints `yaml:"endpoints"`
	Session   SessionConfig         `yaml:"session"`
	Forms     FormsConfig           `yaml:"forms"`
	Metrics   MetricsConfig         `yaml:"metrics"`
	DevServer DevServerConfig       `yaml:"dev_server"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// Load reads a YAML config file, applies defaults, and validates it.
// An empty path yields Default().
func Load(path string) (Config, error) {
	var c Config
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	c.Server.Addr = strings.TrimRight(strings.TrimSpace(c.Server.Addr), "/")
	c.DevServer.DBPath = strings.TrimSpace(c.DevServer.DBPath)
	c.Log.File = strings.TrimSpace(c.Log.File)
	return c, nil
}

// StaffFormOptions converts the staff section into form options.
func (c Config) StaffFormOptions() form.Options {
	return form.Options{
		Departments:   c.Forms.Staff.Departments,
		RequireAvatar: c.Forms.Staff.RequireAvatar,
		Role:          c.Forms.Staff.Role,
	}
}

// MaxAvatarBytes is the attachment size limit.
func (c Config) MaxAvatarBytes() int64 {
	return int64(c.Forms.Staff.MaxAvatarMB) << 20
}

// DevServerAddr is the bind address of the development service.
func (c Config) DevServerAddr() string {
	return fmt.Sprintf("%s:%d", c.DevServer.Bind, c.DevServer.Port)
}

// applyDefaults populates zero-values with sane defaults.
func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DevServer.Bind == "" {
		c.DevServer.Bind = "127.0.0.1"
	}
	if c.DevServer.Port == 0 {
		c.DevServer.Port = 5140
	}
	if c.DevServer.DBPath == "" {
		c.DevServer.DBPath = "./data/staffconsole-dev.db"
	}
	if c.DevServer.MaxUploadMB == 0 {
		c.DevServer.MaxUploadMB = 8
	}
	if c.Server.Addr == "" {
		c.Server.Addr = fmt.Sprintf("http://%s:%d", c.DevServer.Bind, c.DevServer.Port)
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 20 * time.Second
	}
	if c.Server.UserAgent == "" {
		c.Server.UserAgent = "staffconsole"
	}
	d := identityapi.DefaultEndpoints()
	if c.Endpoints.Probe == "" {
		c.Endpoints.Probe = d.Probe
	}
	if c.Endpoints.Login == "" {
		c.Endpoints.Login = d.Login
	}
	if c.Endpoints.Logout == "" {
		c.Endpoints.Logout = d.Logout
	}
	if c.Endpoints.CreateAdmin == "" {
		c.Endpoints.CreateAdmin = d.CreateAdmin
	}
	if c.Endpoints.CreateStaff == "" {
		c.Endpoints.CreateStaff = d.CreateStaff
	}
	if c.Session.LoginRole == "" {
		c.Session.LoginRole = "Admin"
	}
	if c.Session.LoginDelay == 0 {
		c.Session.LoginDelay = 500 * time.Millisecond
	}
	if c.Forms.SuccessDelay == 0 {
		c.Forms.SuccessDelay = time.Second
	}
	if c.Forms.NotifyTTL == 0 {
		c.Forms.NotifyTTL = 3 * time.Second
	}
	if c.Forms.Staff.Role == "" {
		c.Forms.Staff.Role = "Doctor"
	}
	if len(c.Forms.Staff.Departments) == 0 {
		c.Forms.Staff.Departments = append([]string(nil), form.DefaultDepartments...)
	}
	if c.Forms.Staff.MaxAvatarMB == 0 {
		c.Forms.Staff.MaxAvatarMB = 5
	}
}

// validate performs basic sanity checks for required fields and ranges.
// It does not mutate the config.
func validate(c *Config) error {
	u, err := url.Parse(strings.TrimSpace(c.Server.Addr))
	if err != nil || u.Host == "" {
		return errors.New("server.addr must be an absolute url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("server.addr scheme must be http or https")
	}
	if c.Server.Timeout < 0 {
		return errors.New("server.timeout is invalid")
	}
	for name, p := range map[string]string{
		"endpoints.probe":        c.Endpoints.Probe,
		"endpoints.login":        c.Endpoints.Login,
		"endpoints.logout":       c.Endpoints.Logout,
		"endpoints.create_admin": c.Endpoints.CreateAdmin,
		"endpoints.create_staff": c.Endpoints.CreateStaff,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /", name)
		}
	}
	if c.Forms.SuccessDelay < 0 || c.Session.LoginDelay < 0 || c.Forms.NotifyTTL < 0 {
		return errors.New("delays must not be negative")
	}
	for _, d := range c.Forms.Staff.Departments {
		if strings.TrimSpace(d) == "" {
			return errors.New("forms.staff.departments must not contain blank entries")
		}
	}
	if c.Forms.Staff.MaxAvatarMB < 1 || c.Forms.Staff.MaxAvatarMB > 100 {
		return errors.New("forms.staff.max_avatar_mb is invalid")
	}
	if c.DevServer.Port <= 0 || c.DevServer.Port > 65535 {
		return errors.New("dev_server.port is invalid")
	}
	if c.DevServer.MaxUploadMB < 1 || c.DevServer.MaxUploadMB > 1024 {
		return errors.New("dev_server.max_upload_mb is invalid")
	}
	if (c.DevServer.SeedEmail == "") != (c.DevServer.SeedPassword == "") {
		return errors.New("dev_server.seed_email and dev_server.seed_password must be set together")
	}
	return nil
}
