/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"fmt"
	"strings"
	"time"

	"github.com/musicranker/mbproxy/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyTTL           = "ttl"
	cfgKeyMaxEntries    = "maxEntries"
	cfgKeySweepInterval = "sweepInterval"
	cfgKeyTier          = "tier"
	cfgKeyTierTimeout   = "tierTimeout"
	cfgKeyDiskPath      = "disk.path"
)

// TierKind defines possible second-level tiers.
type TierKind string

// Second-level tiers.
const (
	TierNone  TierKind = "none"
	TierRedis TierKind = "redis"
	TierDisk  TierKind = "disk"
)

// DefaultDiskPath is a location of the LevelDB database used by the disk tier.
const DefaultDiskPath = "./data/cache"

var availableTiers = []string{string(TierNone), string(TierRedis), string(TierDisk)}

// Config represents a set of configuration parameters for the response cache.
type Config struct {
	TTL           config.TimeDuration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
	MaxEntries    int                 `mapstructure:"maxEntries" yaml:"maxEntries" json:"maxEntries"`
	SweepInterval config.TimeDuration `mapstructure:"sweepInterval" yaml:"sweepInterval" json:"sweepInterval"`
	Tier          TierKind            `mapstructure:"tier" yaml:"tier" json:"tier"`
	TierTimeout   config.TimeDuration `mapstructure:"tierTimeout" yaml:"tierTimeout" json:"tierTimeout"`
	Disk          DiskConfig          `mapstructure:"disk" yaml:"disk" json:"disk"`

	keyPrefix string
}

// DiskConfig is a configuration of the disk tier.
type DiskConfig struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config that is read from the "cache" section unless keyPrefix is given.
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
	dp.SetDefault(cfgKeyTTL, DefaultTTL)
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
	dp.SetDefault(cfgKeySweepInterval, DefaultSweepInterval)
	dp.SetDefault(cfgKeyTier, string(TierNone))
	dp.SetDefault(cfgKeyTierTimeout, DefaultTierTimeout)
	dp.SetDefault(cfgKeyDiskPath, DefaultDiskPath)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	ttl, err := dp.GetDuration(cfgKeyTTL)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return dp.WrapKeyErr(cfgKeyTTL, fmt.Errorf("must be positive"))
	}
	c.TTL = config.TimeDuration(ttl)

	if c.MaxEntries, err = dp.GetInt(cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.MaxEntries <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxEntries, fmt.Errorf("must be positive"))
	}

	var sweepInterval time.Duration
	if sweepInterval, err = dp.GetDuration(cfgKeySweepInterval); err != nil {
		return err
	}
	if sweepInterval <= 0 {
		return dp.WrapKeyErr(cfgKeySweepInterval, fmt.Errorf("must be positive"))
	}
	c.SweepInterval = config.TimeDuration(sweepInterval)

	tier, err := dp.GetStringFromSet(cfgKeyTier, availableTiers, true)
	if err != nil {
		return err
	}
	c.Tier = TierKind(strings.ToLower(tier))

	var tierTimeout time.Duration
	if tierTimeout, err = dp.GetDuration(cfgKeyTierTimeout); err != nil {
		return err
	}
	c.TierTimeout = config.TimeDuration(tierTimeout)

	if c.Disk.Path, err = dp.GetString(cfgKeyDiskPath); err != nil {
		return err
	}
	if c.Tier == TierDisk && c.Disk.Path == "" {
		return dp.WrapKeyErr(cfgKeyDiskPath, fmt.Errorf("cannot be empty when %q tier is used", TierDisk))
	}
	return nil
}
