package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process settings and the device topology.
type Config struct {
	// ControllerID names this controller on the MQTT bus.
	ControllerID string `yaml:"controller_id"`
	// ListenAddress is the gRPC control API address.
	ListenAddress string `yaml:"listen_addr"`
	// Timeout bounds a single network call to a device or the controller.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// DryRun logs camera and NVR commands instead of sending them.
	DryRun bool `yaml:"dry_run"`
	// MaxConcurrentActuations bounds in-flight actuator commands.
	MaxConcurrentActuations int `yaml:"max_concurrent_actuations"`
	// PersistAppliedConfig writes remotely applied topologies back to the config file.
	PersistAppliedConfig bool `yaml:"persist_applied_config"`
	// Credentials authenticate against cameras, NVRs and the beacon.
	Credentials Credentials `yaml:"credentials"`
	// MQTT configures the edge source and configuration channel.
	MQTT MQTT `yaml:"mqtt"`
	// Topology is the device registry, rule set and timing.
	Topology Topology `yaml:"topology"`
}

// Credentials are passed to the HTTP control plane unchanged.
type Credentials struct {
	// Username for camera and NVR digest authentication.
	Username string `yaml:"username"`
	// Password for camera and NVR digest authentication.
	Password string `yaml:"password"`
	// BeaconUsername for beacon basic authentication.
	BeaconUsername string `yaml:"beacon_username"`
	// BeaconPassword for beacon basic authentication.
	BeaconPassword string `yaml:"beacon_password"`
}

// MQTT configures the broker connection. An empty Broker disables MQTT.
type MQTT struct {
	Broker             string        `yaml:"broker"`
	ClientID           string        `yaml:"client_id"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	TopicPrefix        string        `yaml:"topic_prefix"`
	SwitchProbeTimeout time.Duration `yaml:"switch_probe_timeout"`
}

const (
	// DefaultConfigFilename is the default filename for controller settings.
	DefaultConfigFilename = "perimeter-alarm.yaml"

	// DefaultListenAddress is the default gRPC control API address.
	DefaultListenAddress = "127.0.0.1:50051"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxConcurrentActuations bounds in-flight commands when unset.
	DefaultMaxConcurrentActuations = 8

	// DefaultTopicPrefix is the default MQTT topic root.
	DefaultTopicPrefix = "perimeter"

	// DefaultSwitchProbeTimeout is how long startup waits for the arm switch level.
	DefaultSwitchProbeTimeout = 2 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// Environment overrides for the device credentials.
	envUsername = "PERIMETER_NVR_USERNAME"
	envPassword = "PERIMETER_NVR_PASSWORD"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errControllerIDRequired is returned when the controller id is missing.
	errControllerIDRequired = errors.New("controller_id must be provided")
)

// Load reads configuration from the provided path and validates it.
// Credentials from the environment override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if v := os.Getenv(envUsername); v != "" {
		cfg.Credentials.Username = v
	}

	if v := os.Getenv(envPassword); v != "" {
		cfg.Credentials.Password = v
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file holds device credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// SaveTopology replaces the topology stored in the file at path.
// Other settings are rewritten as read from the file, so credentials
// supplied through the environment never reach the disk.
func SaveTopology(path string, topology *Topology) error {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	cfg.Topology = *topology

	return Save(path, &cfg)
}

// Validate checks required fields, fills defaults and validates the topology.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ControllerID == "" {
		return errControllerIDRequired
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.MaxConcurrentActuations <= 0 {
		cfg.MaxConcurrentActuations = DefaultMaxConcurrentActuations
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	if cfg.MQTT.SwitchProbeTimeout <= 0 {
		cfg.MQTT.SwitchProbeTimeout = DefaultSwitchProbeTimeout
	}

	if err := ValidateTopology(&cfg.Topology); err != nil {
		return fmt.Errorf("topology: %w", err)
	}

	return nil
}
