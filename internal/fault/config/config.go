package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ProxyAddr is the listen address of the intercepting proxy.
	ProxyAddr string `koanf:"proxy_addr" validate:"required,listen_addr"`

	// ControlAddr is the listen address of the control API.
	ControlAddr string `koanf:"control_addr" validate:"required,listen_addr"`

	// Enabled seeds the interception flag at startup.
	Enabled bool `koanf:"enabled"`

	// FailureType seeds the active failure type: "notfound",
	// "serviceunavailable", "ratelimitburst", or "ratelimitsustained".
	FailureType string `koanf:"failure_type" validate:"required,oneof=notfound serviceunavailable ratelimitburst ratelimitsustained"`

	// BlockedHosts seeds the blocked host set. Entries may include the
	// reserved external-services sentinel token.
	BlockedHosts []string `koanf:"blocked_hosts"`

	// BlockNonXboxLive seeds allow-list mode (block all non-xboxlive.com hosts).
	BlockNonXboxLive bool `koanf:"block_non_xboxlive"`

	// CacheSize bounds the decision memoization cache; 0 disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// HostFile is an optional path to the persisted host list. Empty disables
	// persistence and file watching.
	HostFile string `koanf:"host_file"`
}

// DEFAULT_APP_CONFIG defines the default daemon configuration: production
// logging, proxy on :8080, control API on :8081, interception off until a
// client turns it on.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:         "prod",
	LogLevel:    "info",
	ProxyAddr:   ":8080",
	ControlAddr: ":8081",
	Enabled:     false,
	FailureType: "notfound",
	CacheSize:   1024,
}

// validListenAddr validates a bind address in "host:port" form; the host part
// may be empty ("wildcard") and the port must be 1-65535.
func validListenAddr(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "FAULT_". Keys are
// lowercased with the prefix removed; comma- or space-separated values become
// slices. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "FAULT_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "FAULT_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads the default values via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation installs the custom "listen_addr" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("listen_addr", validListenAddr)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
