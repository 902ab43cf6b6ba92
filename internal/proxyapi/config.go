/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package proxyapi

import (
	"fmt"
	"strings"

	"github.com/musicranker/mbproxy/config"
)

const cfgDefaultKeyPrefix = "api"

const (
	cfgKeyRoutePrefix    = "routePrefix"
	cfgKeyCacheHeader    = "cacheHeader"
	cfgKeyCoverArtEmpty  = "coverArtEmptyOnNotFound"
	defaultCacheHeader   = "X-Cache"
	cacheHeaderValueHit  = "HIT"
	cacheHeaderValueMiss = "MISS"
)

// Config represents a set of configuration parameters for the proxy API.
type Config struct {
	// RoutePrefix is prepended to all API routes. Use "/api" for the standalone server layout.
	RoutePrefix string `mapstructure:"routePrefix" yaml:"routePrefix" json:"routePrefix"`

	// CacheHeader is a response header reporting cache HIT/MISS. Empty value disables it.
	CacheHeader string `mapstructure:"cacheHeader" yaml:"cacheHeader" json:"cacheHeader"`

	// CoverArtEmptyOnNotFound makes the cover-art endpoint answer {"images":[]} when the release has no cover art.
	CoverArtEmptyOnNotFound bool `mapstructure:"coverArtEmptyOnNotFound" yaml:"coverArtEmptyOnNotFound" json:"coverArtEmptyOnNotFound"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig(keyPrefix ...string) *Config {
	if len(keyPrefix) > 0 {
		return &Config{keyPrefix: keyPrefix[0]}
	}
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
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
	dp.SetDefault(cfgKeyRoutePrefix, "")
	dp.SetDefault(cfgKeyCacheHeader, defaultCacheHeader)
	dp.SetDefault(cfgKeyCoverArtEmpty, true)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.RoutePrefix, err = dp.GetString(cfgKeyRoutePrefix); err != nil {
		return err
	}
	if c.RoutePrefix != "" && !strings.HasPrefix(c.RoutePrefix, "/") {
		return dp.WrapKeyErr(cfgKeyRoutePrefix, fmt.Errorf("must start with \"/\""))
	}
	c.RoutePrefix = strings.TrimSuffix(c.RoutePrefix, "/")

	if c.CacheHeader, err = dp.GetString(cfgKeyCacheHeader); err != nil {
		return err
	}
	if c.CoverArtEmptyOnNotFound, err = dp.GetBool(cfgKeyCoverArtEmpty); err != nil {
		return err
	}
	return nil
}
