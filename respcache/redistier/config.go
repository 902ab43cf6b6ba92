/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package redistier

import (
	"errors"
	"time"

	"github.com/musicranker/mbproxy/config"
)

const cfgDefaultKeyPrefix = "cache.redis"

const (
	cfgKeyURL          = "url"
	cfgKeyKeyPrefix    = "keyPrefix"
	cfgKeyDialTimeout  = "dialTimeout"
	cfgKeyReadTimeout  = "readTimeout"
	cfgKeyWriteTimeout = "writeTimeout"
	cfgKeyPoolSize     = "poolSize"
)

// Default values.
const (
	DefaultURL          = "redis://localhost:6379/0"
	DefaultKeyPrefix    = "mbproxy:"
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = time.Second
	DefaultWriteTimeout = time.Second
)

// Config represents a set of configuration parameters for the Redis tier.
type Config struct {
	URL            string              `mapstructure:"url" yaml:"url" json:"url"`
	RedisKeyPrefix string              `mapstructure:"keyPrefix" yaml:"keyPrefix" json:"keyPrefix"`
	DialTimeout    config.TimeDuration `mapstructure:"dialTimeout" yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout    config.TimeDuration `mapstructure:"readTimeout" yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout   config.TimeDuration `mapstructure:"writeTimeout" yaml:"writeTimeout" json:"writeTimeout"`
	PoolSize       int                 `mapstructure:"poolSize" yaml:"poolSize" json:"poolSize"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

var errNegativePoolSize = errors.New("must be non-negative")

// NewConfig creates a new Config that is read from the "cache.redis" section unless keyPrefix is given.
func NewConfig(keyPrefix ...string) *Config {
	c := &Config{keyPrefix: cfgDefaultKeyPrefix}
	if len(keyPrefix) != 0 {
		c.keyPrefix = keyPrefix[0]
	}
	return c
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyURL, DefaultURL)
	dp.SetDefault(cfgKeyKeyPrefix, DefaultKeyPrefix)
	dp.SetDefault(cfgKeyDialTimeout, DefaultDialTimeout)
	dp.SetDefault(cfgKeyReadTimeout, DefaultReadTimeout)
	dp.SetDefault(cfgKeyWriteTimeout, DefaultWriteTimeout)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	if c.RedisKeyPrefix, err = dp.GetString(cfgKeyKeyPrefix); err != nil {
		return err
	}
	for _, d := range []struct {
		key string
		dst *config.TimeDuration
	}{
		{cfgKeyDialTimeout, &c.DialTimeout},
		{cfgKeyReadTimeout, &c.ReadTimeout},
		{cfgKeyWriteTimeout, &c.WriteTimeout},
	} {
		var val time.Duration
		if val, err = dp.GetDuration(d.key); err != nil {
			return err
		}
		*d.dst = config.TimeDuration(val)
	}
	if c.PoolSize, err = dp.GetInt(cfgKeyPoolSize); err != nil {
		return err
	}
	if c.PoolSize < 0 {
		return dp.WrapKeyErr(cfgKeyPoolSize, errNegativePoolSize)
	}
	return nil
}
