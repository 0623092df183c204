// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/confstore/internal/configservice"
	"github.com/cardinalhq/confstore/internal/debugging"
	"github.com/cardinalhq/confstore/internal/fly"
	"github.com/cardinalhq/confstore/internal/gitstore"
	"github.com/cardinalhq/confstore/internal/healthcheck"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Service   ServiceConfig      `mapstructure:"service"`
	Git       GitConfig          `mapstructure:"git"`
	External  []ExternalConfig   `mapstructure:"external"`
	Kafka     fly.Config         `mapstructure:"kafka"`
	Topics    TopicsConfig       `mapstructure:"topics"`
	Tenants   TenantsConfig      `mapstructure:"tenants"`
	Reconcile ReconcileConfig    `mapstructure:"reconcile"`
	Health    healthcheck.Config `mapstructure:"health"`
	Debug     debugging.Config   `mapstructure:"debug"`

	TopicRegistry *TopicRegistry `mapstructure:"-"`
}

type ServiceConfig struct {
	// Name is stamped on mutation events this cluster sends, and mutation
	// events carrying it are ignored on receipt.
	Name     string        `mapstructure:"name"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`

	// NodeID names this node's change consumer group. Blank uses the id
	// kept with the local working copy.
	NodeID string `mapstructure:"node_id"`
}

// GitConfig locates one git repository.
type GitConfig struct {
	RemoteURI   string        `mapstructure:"remote_uri"`
	Branch      string        `mapstructure:"branch"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	LocalPath   string        `mapstructure:"local_path"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	AuthorName  string        `mapstructure:"author_name"`
	AuthorEmail string        `mapstructure:"author_email"`
}

// StoreOptions converts g for gitstore.Open.
func (g GitConfig) StoreOptions() gitstore.Options {
	return gitstore.Options{
		RemoteURI: g.RemoteURI,
		Branch:    g.Branch,
		Credentials: gitstore.Credentials{
			Username: g.Username,
			Password: g.Password,
		},
		LocalPath:   g.LocalPath,
		MaxWait:     g.MaxWait,
		AuthorName:  g.AuthorName,
		AuthorEmail: g.AuthorEmail,
	}
}

// ExternalConfig is a read-only repository served under its name.
type ExternalConfig struct {
	Name string    `mapstructure:"name"`
	Git  GitConfig `mapstructure:"git"`
}

type TenantsConfig struct {
	AliasTreePath string `mapstructure:"alias_tree_path"`
}

type ReconcileConfig struct {
	// Interval between full reloads from the store. Zero disables them.
	Interval time.Duration `mapstructure:"interval"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "confstore",
			DedupTTL: 10 * time.Minute,
		},
		Git: GitConfig{
			Branch:    "main",
			LocalPath: "/var/lib/confstore/repo",
			MaxWait:   30 * time.Second,
		},
		Kafka:     *fly.DefaultConfig(),
		Topics:    TopicsConfig{Prefix: "confstore"},
		Tenants:   TenantsConfig{AliasTreePath: configservice.DefaultAliasTreePath},
		Reconcile: ReconcileConfig{Interval: 5 * time.Minute},
		Health:    healthcheck.Config{Port: 8090},
		Debug:     debugging.Config{PprofPort: debugging.DefaultPprofPort},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "CONFSTORE" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "CONFSTORE_KAFKA_BROKERS". A blank file looks for config.yaml in the
// working directory and tolerates its absence.
func Load(file string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("CONFSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}

	if cfg.Topics.File != "" {
		override, err := LoadTopicsOverride(cfg.Topics.File)
		if err != nil {
			return nil, err
		}
		cfg.Topics = MergeTopicsOverride(cfg.Topics, override)
	}
	cfg.TopicRegistry = NewTopicRegistry(cfg.Topics.Prefix)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if c.Git.LocalPath == "" {
		errs = append(errs, errors.New("git.local_path is required"))
	}
	names := map[string]bool{}
	for i, ext := range c.External {
		switch {
		case ext.Name == "":
			errs = append(errs, fmt.Errorf("external[%d]: name is required", i))
		case names[ext.Name]:
			errs = append(errs, fmt.Errorf("external[%d]: duplicate name %q", i, ext.Name))
		}
		names[ext.Name] = true
		if ext.Git.LocalPath == "" {
			errs = append(errs, fmt.Errorf("external[%d]: git.local_path is required", i))
		}
	}
	if c.Reconcile.Interval < 0 {
		errs = append(errs, fmt.Errorf("reconcile.interval must not be negative, got %s", c.Reconcile.Interval))
	}
	if err := c.Kafka.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "-" || !f.IsExported() {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		// Lists of sections and maps only come from the config file.
		if k := f.Type.Kind(); k == reflect.Map || (k == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct) {
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
