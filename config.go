package livenav

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from the human-readable
// YAML form ("30s", "2m") as well as a plain nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RouteConfig declares one route of the route table.
type RouteConfig struct {
	Path            string   `yaml:"path" validate:"required"`
	ContentEndpoint string   `yaml:"content_endpoint" validate:"required,uri"`
	Title           string   `yaml:"title"`
	PreloadModules  []string `yaml:"preload_modules"`
}

// Config is the startup configuration of a Client: the immutable
// route table plus the live-update endpoints and tuning knobs.
type Config struct {
	Routes      []RouteConfig `yaml:"routes" validate:"required,min=1,dive"`
	DefaultPath string        `yaml:"default_path" validate:"required"`

	// MountID is the content mount point id; defaults to "content".
	MountID string `yaml:"mount_id"`
	// PrimaryContainer is the main feed container id, the fallback
	// target for deep links; defaults to "posts-feed".
	PrimaryContainer string `yaml:"primary_container"`

	// FeedCheckURL and NotificationCheckURL configure the two
	// live-update pollers; either may be empty to disable that feed.
	FeedCheckURL         string `yaml:"feed_check_url" validate:"omitempty,uri"`
	NotificationCheckURL string `yaml:"notification_check_url" validate:"omitempty,uri"`

	// FeedInterval and NotificationInterval are the poll schedules;
	// notifications poll on a shorter default.
	FeedInterval         Duration `yaml:"feed_interval"`
	NotificationInterval Duration `yaml:"notification_interval"`

	// SettleDelay is the router's post-swap re-arm debounce.
	SettleDelay Duration `yaml:"settle_delay"`

	// DeviceStorePath is the sqlite path for device-scoped storage;
	// defaults to in-memory.
	DeviceStorePath string `yaml:"device_store_path"`
}

// Defaults applied where Config leaves fields zero.
const (
	DefaultMountID              = "content"
	DefaultPrimaryContainer     = "posts-feed"
	DefaultFeedInterval         = 60 * time.Second
	DefaultNotificationInterval = 30 * time.Second
	DefaultSettleDelay          = 100 * time.Millisecond
)

// LoadConfig parses and validates a YAML configuration document.
func LoadConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration's declared constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// withDefaults returns a copy with zero fields filled in.
func (c Config) withDefaults() Config {
	if c.MountID == "" {
		c.MountID = DefaultMountID
	}
	if c.PrimaryContainer == "" {
		c.PrimaryContainer = DefaultPrimaryContainer
	}
	if c.FeedInterval <= 0 {
		c.FeedInterval = Duration(DefaultFeedInterval)
	}
	if c.NotificationInterval <= 0 {
		c.NotificationInterval = Duration(DefaultNotificationInterval)
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = Duration(DefaultSettleDelay)
	}
	if c.DeviceStorePath == "" {
		c.DeviceStorePath = ":memory:"
	}
	return c
}
