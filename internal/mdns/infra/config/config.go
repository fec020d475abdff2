package config

import (
	"fmt"
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

	// UDPPayloadSize caps outgoing datagrams in bytes.
	UDPPayloadSize int `koanf:"udp_payload_size" validate:"required,gte=512,lte=9000"`

	// Interfaces optionally restricts the responder to the named network
	// interfaces. Empty means all multicast-capable interfaces.
	Interfaces []string `koanf:"interfaces"`

	// CacheSize bounds the known-answer cache, in keys.
	CacheSize uint `koanf:"cache_size" validate:"required,gte=1"`

	// Instance is the service instance name to advertise (e.g. "My Printer").
	Instance string `koanf:"instance" validate:"required"`

	// Service is the DNS-SD service type (e.g. "_http._tcp").
	Service string `koanf:"service" validate:"required,startswith=_"`

	// Port is the port the advertised service listens on.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// Hostname is the host label to claim on the local domain.
	Hostname string `koanf:"hostname" validate:"required"`
}

// envLoader loads environment variables with the prefix "RRMDNS_",
// lowercasing keys and stripping the prefix. Mockable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "RRMDNS_",
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, "RRMDNS_")), value
		},
	}), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	// Load default values using structs provider.
	k.Load(structs.Provider(AppConfig{
		Env:            "prod",
		LogLevel:       "info",
		UDPPayloadSize: 1440,
		CacheSize:      1000,
		Instance:       "rr-mdns",
		Service:        "_http._tcp",
		Port:           80,
		Hostname:       "rr-mdns",
	}, "koanf"), nil)

	err := envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	// Unmarshal the loaded configuration into AppConfig struct.
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Validate the configuration.
	validate := validator.New(validator.WithRequiredStructEnabled())

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
