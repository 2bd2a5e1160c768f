package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the directory under $HOME holding every app.
	DefaultBaseDir = ".hfpag"
	// DefaultConfigFile is the config file name inside the app directory.
	DefaultConfigFile = "config.yaml"
)

// ErrNoCurrentContext is returned when no context was selected.
var ErrNoCurrentContext = errors.New("cli: no current context set")

// Config is the configuration file of one app.
type Config struct {
	AppName        string              `yaml:"-"`
	CurrentContext string              `yaml:"current_context,omitempty"`
	Contexts       map[string]*Context `yaml:"contexts,omitempty"`

	path string
}

// Context is one named daemon setup. Zero values mean "use the default".
type Context struct {
	Name string `yaml:"name"`

	// Adapter is the local controller, e.g. "hci0".
	Adapter string `yaml:"adapter,omitempty"`
	// Channel is the RFCOMM channel of the gateway profile.
	Channel int `yaml:"channel,omitempty"`
	// MaxConnections is the number of simultaneously connected devices.
	MaxConnections int `yaml:"max_connections,omitempty"`
	// InbandRinging overrides in-band ring tone support when set.
	InbandRinging *bool `yaml:"inband_ringing,omitempty"`

	// Listen is the HTTP address of the event hub and status endpoint.
	Listen string `yaml:"listen,omitempty"`
	// Server is the address clients use to reach a running daemon.
	Server string `yaml:"server,omitempty"`
	// DataDir holds the priority database. Empty keeps priorities in
	// memory.
	DataDir string `yaml:"data_dir,omitempty"`

	// Operator and SubscriberNumber answer AT+COPS? and AT+CNUM.
	Operator         string `yaml:"operator,omitempty"`
	SubscriberNumber string `yaml:"subscriber_number,omitempty"`

	// Extra stores settings without a dedicated field.
	Extra map[string]string `yaml:"extra,omitempty"`
}

// LoadConfig loads ~/.hfpag/<app>/config.yaml, creating it if missing.
func LoadConfig(appName string) (*Config, error) {
	return LoadConfigWithPath(appName, "")
}

// LoadConfigWithPath loads the config at path, or at the default location
// when path is empty.
func LoadConfigWithPath(appName, path string) (*Config, error) {
	if path == "" {
		p, err := NewPaths(appName)
		if err != nil {
			return nil, fmt.Errorf("cli: home directory: %w", err)
		}
		path = p.ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cli: create config directory: %w", err)
	}

	cfg := &Config{AppName: appName, path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.Contexts = make(map[string]*Context)
		return cfg, cfg.Save()
	case err != nil:
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = make(map[string]*Context)
	}
	for name, c := range cfg.Contexts {
		c.Name = name
	}
	cfg.AppName = appName
	cfg.path = path
	return cfg, nil
}

// Save writes the config file.
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string { return c.path }

// Dir returns the directory holding the config file.
func (c *Config) Dir() string { return filepath.Dir(c.path) }

// SetContext adds or replaces a context and saves.
func (c *Config) SetContext(name string, ctx *Context) error {
	ctx.Name = name
	c.Contexts[name] = ctx
	return c.Save()
}

// DeleteContext removes a context and saves. Deleting the current context
// leaves no context selected.
func (c *Config) DeleteContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	delete(c.Contexts, name)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return c.Save()
}

// UseContext selects the current context and saves.
func (c *Config) UseContext(name string) error {
	if _, ok := c.Contexts[name]; !ok {
		return fmt.Errorf("cli: context %q not found", name)
	}
	c.CurrentContext = name
	return c.Save()
}

// GetContext returns the named context.
func (c *Config) GetContext(name string) (*Context, error) {
	ctx, ok := c.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("cli: context %q not found", name)
	}
	return ctx, nil
}

// ResolveContext returns the named context, or the current one when name
// is empty.
func (c *Config) ResolveContext(name string) (*Context, error) {
	if name != "" {
		return c.GetContext(name)
	}
	if c.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}
	return c.GetContext(c.CurrentContext)
}

// ListContexts returns the context names in sorted order.
func (c *Config) ListContexts() []string {
	names := make([]string, 0, len(c.Contexts))
	for name := range c.Contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetExtra returns an extra value, or "" when unset.
func (ctx *Context) GetExtra(key string) string {
	return ctx.Extra[key]
}

// SetExtra sets an extra value.
func (ctx *Context) SetExtra(key, value string) {
	if ctx.Extra == nil {
		ctx.Extra = make(map[string]string)
	}
	ctx.Extra[key] = value
}

// Set assigns a context field by its YAML key. Unknown keys go to Extra.
func (ctx *Context) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("cli: %s: %w", key, err)
		}
		return n, nil
	}
	switch key {
	case "adapter":
		ctx.Adapter = value
	case "channel":
		n, err := atoi()
		if err != nil {
			return err
		}
		ctx.Channel = n
	case "max_connections":
		n, err := atoi()
		if err != nil {
			return err
		}
		ctx.MaxConnections = n
	case "inband_ringing":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cli: %s: %w", key, err)
		}
		ctx.InbandRinging = &b
	case "listen":
		ctx.Listen = value
	case "server":
		ctx.Server = value
	case "data_dir":
		ctx.DataDir = value
	case "operator":
		ctx.Operator = value
	case "subscriber_number":
		ctx.SubscriberNumber = value
	default:
		ctx.SetExtra(key, value)
	}
	return nil
}
