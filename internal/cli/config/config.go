// Package config loads the recordlink CLI configuration from
// recordlink.yml, with environment variable overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config describes a sync run: the two collection backends and the
// relationship between them.
type Config struct {
	Parent       BackendConfig      `mapstructure:"parent"`
	Child        BackendConfig      `mapstructure:"child"`
	Relationship RelationshipConfig `mapstructure:"relationship"`
	Verbose      bool               `mapstructure:"verbose"`
}

// BackendConfig describes one collection backend.
type BackendConfig struct {
	// Kind selects the backend: memory, postgres, redis, or sqlite.
	Kind string `mapstructure:"kind"`
	// Entity is the collection (and table/key-space) name.
	Entity string `mapstructure:"entity"`
	// KeyField is the externally-visible identifier field.
	KeyField string `mapstructure:"key_field"`
	// LocalKeyField is the internally-assigned identifier field.
	LocalKeyField string `mapstructure:"local_key_field"`
	// URL is the connection string for postgres and sqlite backends.
	URL string `mapstructure:"url"`
	// Addr, Password and DB configure the redis backend.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RelationshipConfig describes the one-to-many relationship the joint
// maintains.
type RelationshipConfig struct {
	LookupField       string   `mapstructure:"lookup_field"`
	ParentFieldName   string   `mapstructure:"parent_field_name"`
	ParentFields      []string `mapstructure:"parent_fields"`
	RelatedListName   string   `mapstructure:"related_list_name"`
	RelatedListFields []string `mapstructure:"related_list_fields"`
}

var validKinds = map[string]bool{
	"memory":   true,
	"postgres": true,
	"redis":    true,
	"sqlite":   true,
}

// Load loads the configuration from recordlink.yml or recordlink.yaml in the
// working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("parent.kind", "memory")
	v.SetDefault("parent.key_field", "external_id")
	v.SetDefault("parent.local_key_field", "id")
	v.SetDefault("child.kind", "memory")
	v.SetDefault("child.key_field", "external_id")
	v.SetDefault("child.local_key_field", "id")

	v.SetConfigName("recordlink")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECORDLINK")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(c *Config) error {
	for side, b := range map[string]BackendConfig{"parent": c.Parent, "child": c.Child} {
		if !validKinds[b.Kind] {
			return fmt.Errorf("%s.kind must be one of memory, postgres, redis, sqlite (got %q)", side, b.Kind)
		}
		if b.Entity == "" {
			return fmt.Errorf("%s.entity is required", side)
		}
		switch b.Kind {
		case "postgres", "sqlite":
			if b.URL == "" {
				return fmt.Errorf("%s.url is required for the %s backend", side, b.Kind)
			}
		case "redis":
			if b.Addr == "" {
				return fmt.Errorf("%s.addr is required for the redis backend", side)
			}
		}
	}

	if c.Relationship.LookupField == "" {
		return fmt.Errorf("relationship.lookup_field is required")
	}
	if c.Relationship.ParentFieldName == "" {
		return fmt.Errorf("relationship.parent_field_name is required")
	}
	if c.Relationship.RelatedListName != "" && len(c.Relationship.RelatedListFields) == 0 {
		return fmt.Errorf("relationship.related_list_fields is required when related_list_name is set")
	}
	return nil
}
