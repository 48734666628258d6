// Package config provides YAML-based configuration loading for bridge nodes.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/fsnotify/fsnotify"
    "github.com/spf13/viper"

    "github.com/hone-labs/comms-bridge/pkg/transport"
)

// Config is the root node configuration.
type Config struct {
    // AppName optional logical name of the node/application
    AppName string `mapstructure:"app_name"`

    // InstanceID is the local instance identifier used in envelope routing.
    // It must be unique within the set of peers this node exchanges
    // messages with.
    InstanceID string `mapstructure:"instance_id"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Send holds dispatch defaults
    Send SendConfig `mapstructure:"send"`

    // Transports lists the incoming and outgoing channels to register
    Transports []TransportConfig `mapstructure:"transports"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// SendConfig holds dispatch defaults.
type SendConfig struct {
    // TimeoutMS bounds awaited sends that carry no explicit timeout.
    TimeoutMS int `mapstructure:"timeout_ms"`
}

// Timeout returns the configured reply timeout as a duration.
func (s SendConfig) Timeout() time.Duration { return time.Duration(s.TimeoutMS) * time.Millisecond }

// TransportConfig describes one channel to register on the bridge.
// Example YAML:
//
//  transports:
//    - id: uplink
//      kind: tcp
//      direction: outgoing
//      address: "10.0.0.2:7788"
//      codec: cbor
//    - id: uplink
//      kind: tcp
//      direction: incoming
//      address: ":7788"
//      codec: cbor
//
// Registering an incoming and an outgoing channel under the same id pairs
// them: replies to requests that arrived on the incoming side leave through
// the outgoing side of the pair.
type TransportConfig struct {
    ID        string `mapstructure:"id"`
    Kind      string `mapstructure:"kind"`
    Direction string `mapstructure:"direction"`
    Address   string `mapstructure:"address"`
    Codec     string `mapstructure:"codec"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName:    "comms-bridge",
        InstanceID: "bridge-1",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/bridge.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Send: SendConfig{TimeoutMS: 5000},
    }
}

// Load reads configuration from an explicit path when given; otherwise it
// searches common locations and supports environment overrides. Environment
// variables use the prefix BRIDGE and `.`/`-` are replaced with `_`.
// Example: BRIDGE_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    v, err := newViper(path)
    if err != nil {
        return nil, err
    }
    return decode(v)
}

// Watch behaves like Load and then keeps watching the underlying config file,
// invoking fn with every reload that decodes and validates. A reload that
// fails either step is dropped and the previous configuration stays in
// effect. Watching is a no-op when no config file was found.
func Watch(path string, fn func(*Config)) (*Config, error) {
    v, err := newViper(path)
    if err != nil {
        return nil, err
    }
    cfg, err := decode(v)
    if err != nil {
        return nil, err
    }
    if v.ConfigFileUsed() != "" {
        v.OnConfigChange(func(fsnotify.Event) {
            next, err := decode(v)
            if err != nil {
                return
            }
            fn(next)
        })
        v.WatchConfig()
    }
    return cfg, nil
}

func newViper(path string) (*viper.Viper, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("BRIDGE")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("instance_id", cfg.InstanceID)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("send.timeout_ms", cfg.Send.TimeoutMS)
    v.SetDefault("transports", cfg.Transports)

    if path == "" {
        if envPath := os.Getenv("BRIDGE_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `bridge`
        v.SetConfigName("bridge")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".comms-bridge"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }
    return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
    cfg := Default()
    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }
    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if strings.TrimSpace(c.InstanceID) == "" {
        c.InstanceID = "bridge-1"
    }
    if c.Send.TimeoutMS <= 0 {
        c.Send.TimeoutMS = 5000
    }

    seen := make(map[string]bool)
    for i := range c.Transports {
        tc := &c.Transports[i]
        tc.Kind = strings.ToLower(strings.TrimSpace(tc.Kind))
        tc.Direction = strings.ToLower(strings.TrimSpace(tc.Direction))
        tc.Codec = strings.ToLower(strings.TrimSpace(tc.Codec))
        if strings.TrimSpace(tc.ID) == "" {
            return fmt.Errorf("transports[%d]: missing id", i)
        }
        switch transport.KindFromString(tc.Kind) {
        case transport.KindUnknown:
            return fmt.Errorf("transports[%d] %q: unknown kind %q", i, tc.ID, tc.Kind)
        case transport.KindMem:
            return fmt.Errorf("transports[%d] %q: mem transports are in-process only and cannot be configured", i, tc.ID)
        }
        switch tc.Direction {
        case "incoming", "outgoing":
        default:
            return fmt.Errorf("transports[%d] %q: direction must be incoming or outgoing, got %q", i, tc.ID, tc.Direction)
        }
        if strings.TrimSpace(tc.Address) == "" {
            return fmt.Errorf("transports[%d] %q: missing address", i, tc.ID)
        }
        // Envelopes on the wire are plain structs; the proto codec only
        // handles proto.Message values and would fail every delivery.
        if tc.Codec == "proto" {
            return fmt.Errorf("transports[%d] %q: codec proto cannot carry envelopes, use json or cbor", i, tc.ID)
        }
        key := tc.Direction + "/" + tc.ID
        if seen[key] {
            return fmt.Errorf("transports[%d]: duplicate %s id %q", i, tc.Direction, tc.ID)
        }
        seen[key] = true
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
