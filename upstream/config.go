/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package upstream

import (
	"fmt"
	"net/url"
	"time"

	"github.com/musicranker/mbproxy/config"
	"github.com/musicranker/mbproxy/scheduler"
)

const (
	cfgKeyBaseURL         = "baseURL"
	cfgKeyUserAgent       = "userAgent"
	cfgKeyMinInterval     = "minInterval"
	cfgKeyMaxResponseSize = "maxResponseSize"
)

// Well-known upstreams.
const (
	MusicBrainzKeyPrefix = "upstreams.musicbrainz"
	CoverArtKeyPrefix    = "upstreams.coverArt"

	DefaultMusicBrainzBaseURL = "https://musicbrainz.org/ws/2"
	DefaultCoverArtBaseURL    = "https://coverartarchive.org"

	// DefaultUserAgent identifies the proxy. MusicBrainz asks for a contact in the User-Agent, so it should be overridden.
	DefaultUserAgent = "MusicRanker/1.0.0 (your-email@example.com)"
)

// Config represents a set of configuration parameters of a single upstream.
type Config struct {
	BaseURL         string              `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	UserAgent       string              `mapstructure:"userAgent" yaml:"userAgent" json:"userAgent"`
	MinInterval     config.TimeDuration `mapstructure:"minInterval" yaml:"minInterval" json:"minInterval"`
	MaxResponseSize config.ByteSize     `mapstructure:"maxResponseSize" yaml:"maxResponseSize" json:"maxResponseSize"`

	keyPrefix      string
	defaultBaseURL string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config read from the keyPrefix section with defaultBaseURL used when no base URL is configured.
func NewConfig(keyPrefix, defaultBaseURL string) *Config {
	return &Config{keyPrefix: keyPrefix, defaultBaseURL: defaultBaseURL}
}

// NewMusicBrainzConfig creates a new Config of the MusicBrainz Web Service.
func NewMusicBrainzConfig() *Config {
	return NewConfig(MusicBrainzKeyPrefix, DefaultMusicBrainzBaseURL)
}

// NewCoverArtConfig creates a new Config of the Cover Art Archive.
func NewCoverArtConfig() *Config {
	return NewConfig(CoverArtKeyPrefix, DefaultCoverArtBaseURL)
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBaseURL, c.defaultBaseURL)
	dp.SetDefault(cfgKeyUserAgent, DefaultUserAgent)
	dp.SetDefault(cfgKeyMinInterval, scheduler.DefaultMinInterval)
	dp.SetDefault(cfgKeyMaxResponseSize, DefaultMaxResponseSize)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyBaseURL, err)
	}
	if !parsedURL.IsAbs() || parsedURL.Host == "" {
		return dp.WrapKeyErr(cfgKeyBaseURL, fmt.Errorf("must be an absolute URL, got %q", c.BaseURL))
	}

	if c.UserAgent, err = dp.GetString(cfgKeyUserAgent); err != nil {
		return err
	}
	if c.UserAgent == "" {
		return dp.WrapKeyErr(cfgKeyUserAgent, fmt.Errorf("cannot be empty"))
	}

	minInterval, err := dp.GetDuration(cfgKeyMinInterval)
	if err != nil {
		return err
	}
	if minInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyMinInterval, fmt.Errorf("must be positive"))
	}
	c.MinInterval = config.TimeDuration(minInterval)

	if c.MaxResponseSize, err = dp.GetByteSize(cfgKeyMaxResponseSize); err != nil {
		return err
	}
	return nil
}

// SchedulerOptions returns options of the scheduler pacing requests to the upstream.
func (c *Config) SchedulerOptions(name string) scheduler.Options {
	return scheduler.Options{Name: name, MinInterval: time.Duration(c.MinInterval)}
}
