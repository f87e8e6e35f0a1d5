package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Snapshot is one consistent view of the runtime configuration. API
// credentials are not part of it; those live in the credential store.
type Snapshot struct {
	Trading  TradingConfig  `yaml:"trading" json:"trading"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

type TradingConfig struct {
	DefaultExchange string  `yaml:"default_exchange" json:"default_exchange"`
	DefaultLeverage int     `yaml:"default_leverage" json:"default_leverage"`
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size"`
	EnableTrading   bool    `yaml:"enable_trading" json:"enable_trading"`
	MarginMode      string  `yaml:"margin_mode" json:"margin_mode"`
}

type SecurityConfig struct {
	RequireIPWhitelist bool     `yaml:"require_ip_whitelist" json:"require_ip_whitelist"`
	AllowedIPs         []string `yaml:"allowed_ips" json:"allowed_ips"`
}

type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

func Defaults() Snapshot {
	return Snapshot{
		Trading: TradingConfig{
			DefaultExchange: "binance",
			DefaultLeverage: 1,
			MaxPositionSize: 100,
			EnableTrading:   true,
			MarginMode:      "isolated",
		},
		Security: SecurityConfig{
			RequireIPWhitelist: false,
			AllowedIPs:         []string{},
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Config holds the live configuration and writes changes back to its
// yaml file. Reads and updates are safe for concurrent use.
type Config struct {
	mu   sync.RWMutex
	path string
	data Snapshot
}

// Load reads the yaml file at path, decoded over the defaults so that
// absent keys keep their default values. A missing file is not an
// error: the defaults apply and the file is created on first save.
func Load(path string) (*Config, error) {
	data := Defaults()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults apply
	default:
		return nil, err
	}

	return &Config{path: path, data: data}, nil
}

// View returns a copy of the current configuration.
func (c *Config) View() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyLocked()
}

// Update applies fn to the configuration and persists the result.
func (c *Config) Update(fn func(*Snapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
	return c.saveLocked()
}

func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Config) saveLocked() error {
	raw, err := yaml.Marshal(c.data)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.path, raw, 0o644)
}

func (c *Config) copyLocked() Snapshot {
	out := c.data
	out.Security.AllowedIPs = append([]string(nil), c.data.Security.AllowedIPs...)
	return out
}

// Settings implementation used by the dispatcher.

func (c *Config) TradingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Trading.EnableTrading
}

func (c *Config) DefaultExchange() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Trading.DefaultExchange
}

func (c *Config) DefaultLeverage() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Trading.DefaultLeverage
}

// FallbackNotional is the fixed order notional used when a signal
// carries no amount and no balance-based size can be computed.
func (c *Config) FallbackNotional() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Trading.MaxPositionSize
}
