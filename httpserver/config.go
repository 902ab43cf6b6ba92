/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"strings"
	"time"

	"github.com/musicranker/mbproxy/config"
	"github.com/musicranker/mbproxy/internal/ratelimit"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress                 = "address"
	cfgKeyServerTimeoutsWrite           = "timeouts.write"
	cfgKeyServerTimeoutsRead            = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader      = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle            = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown        = "timeouts.shutdown"
	cfgKeyServerLogRequestStart         = "log.requestStart"
	cfgKeyServerLogRequestHeaders       = "log.requestHeaders"
	cfgKeyServerLogExcludedEndpoints    = "log.excludedEndpoints"
	cfgKeyServerLogSecretQueryParams    = "log.secretQueryParams" // nolint:gosec // false positive
	cfgKeyServerLogAddRequestInfo       = "log.addRequestInfo"
	cfgKeyServerLogSlowRequestThreshold = "log.slowRequestThreshold"
	cfgKeyServerRateLimitEnabled        = "rateLimit.enabled"
	cfgKeyServerRateLimitAlg            = "rateLimit.alg"
	cfgKeyServerRateLimitRate           = "rateLimit.rate"
	cfgKeyServerRateLimitBurst          = "rateLimit.burst"
	cfgKeyServerRateLimitPerClient      = "rateLimit.perClient"
	cfgKeyServerRateLimitTrustProxy     = "rateLimit.trustProxyHeaders"
	cfgKeyServerRateLimitMaxClients     = "rateLimit.maxClients"
	cfgKeyServerRateLimitExcluded       = "rateLimit.excludedEndpoints"
	cfgKeyServerRateLimitDryRun         = "rateLimit.dryRun"
	cfgKeyServerCORSAllowedOrigins      = "cors.allowedOrigins"
	cfgKeyServerCORSMaxAge              = "cors.maxAge"
)

const (
	defaultServerAddress            = ":3001"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultSlowRequestThreshold     = time.Second
	defaultRateLimitRate            = "600/m"
	defaultRateLimitMaxClients      = 10000
	defaultCORSMaxAge               = time.Hour
)

var (
	defaultExcludedEndpoints = []string{"/metrics", "/health", "*/health"}
	availableRateLimitAlgs   = []string{string(ratelimit.AlgLeakyBucket), string(ratelimit.AlgSlidingWindow)}
)

// Config is the "server" section: the listening address, timeouts, request logging,
// inbound rate limiting and CORS. It can also be decoded from YAML or JSON directly.
type Config struct {
	Address   string          `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors" json:"cors"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new Config that is read from the "server" section unless keyPrefix is given.
func NewConfig(keyPrefix ...string) *Config {
	c := &Config{keyPrefix: cfgDefaultKeyPrefix}
	if len(keyPrefix) != 0 {
		c.keyPrefix = keyPrefix[0]
	}
	return c
}

// NewDefaultConfig returns the configuration used when nothing is set.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Address:   defaultServerAddress,
		Timeouts: TimeoutsConfig{
			Write:      config.TimeDuration(defaultServerTimeoutsWrite),
			Read:       config.TimeDuration(defaultServerTimeoutsRead),
			ReadHeader: config.TimeDuration(defaultServerTimeoutsReadHeader),
			Idle:       config.TimeDuration(defaultServerTimeoutsIdle),
			Shutdown:   config.TimeDuration(defaultServerTimeoutsShutdown),
		},
		Log: LogConfig{
			ExcludedEndpoints:    defaultExcludedEndpoints,
			SlowRequestThreshold: config.TimeDuration(defaultSlowRequestThreshold),
		},
		RateLimit: RateLimitConfig{
			Alg:               ratelimit.AlgLeakyBucket,
			Rate:              ratelimit.Rate{Count: 600, Duration: time.Minute},
			PerClient:         true,
			MaxClients:        defaultRateLimitMaxClients,
			ExcludedEndpoints: defaultExcludedEndpoints,
		},
		CORS: CORSConfig{MaxAge: config.TimeDuration(defaultCORSMaxAge)},
	}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults registers defaults of every server key.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	for key, val := range map[string]interface{}{
		cfgKeyServerAddress:                 defaultServerAddress,
		cfgKeyServerTimeoutsWrite:           defaultServerTimeoutsWrite,
		cfgKeyServerTimeoutsRead:            defaultServerTimeoutsRead,
		cfgKeyServerTimeoutsReadHeader:      defaultServerTimeoutsReadHeader,
		cfgKeyServerTimeoutsIdle:            defaultServerTimeoutsIdle,
		cfgKeyServerTimeoutsShutdown:        defaultServerTimeoutsShutdown,
		cfgKeyServerLogExcludedEndpoints:    defaultExcludedEndpoints,
		cfgKeyServerLogSlowRequestThreshold: defaultSlowRequestThreshold,
		cfgKeyServerRateLimitAlg:            string(ratelimit.AlgLeakyBucket),
		cfgKeyServerRateLimitRate:           defaultRateLimitRate,
		cfgKeyServerRateLimitPerClient:      true,
		cfgKeyServerRateLimitMaxClients:     defaultRateLimitMaxClients,
		cfgKeyServerRateLimitExcluded:       defaultExcludedEndpoints,
		cfgKeyServerCORSMaxAge:              defaultCORSMaxAge,
	} {
		dp.SetDefault(key, val)
	}
}

// Set reads and validates the whole server section.
func (c *Config) Set(dp config.DataProvider) (err error) {
	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if c.Address == "" {
		return dp.WrapKeyErr(cfgKeyServerAddress, fmt.Errorf("cannot be empty"))
	}
	for _, sub := range []interface{ Set(config.DataProvider) error }{&c.Timeouts, &c.Log, &c.RateLimit, &c.CORS} {
		if err = sub.Set(dp); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutsConfig holds the net/http server timeouts plus the graceful shutdown limit.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set reads the "timeouts" subsection. Negative values are rejected.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	for _, item := range []struct {
		key  string
		dest *config.TimeDuration
	}{
		{cfgKeyServerTimeoutsWrite, &t.Write},
		{cfgKeyServerTimeoutsRead, &t.Read},
		{cfgKeyServerTimeoutsReadHeader, &t.ReadHeader},
		{cfgKeyServerTimeoutsIdle, &t.Idle},
		{cfgKeyServerTimeoutsShutdown, &t.Shutdown},
	} {
		dur, err := dp.GetDuration(item.key)
		if err != nil {
			return err
		}
		if dur < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
		*item.dest = config.TimeDuration(dur)
	}
	return nil
}

// LogConfig controls the access log of the server.
type LogConfig struct {
	RequestStart           bool                `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	RequestHeaders         []string            `mapstructure:"requestHeaders" yaml:"requestHeaders" json:"requestHeaders"`
	ExcludedEndpoints      []string            `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	SecretQueryParams      []string            `mapstructure:"secretQueryParams" yaml:"secretQueryParams" json:"secretQueryParams"`
	AddRequestInfoToLogger bool                `mapstructure:"addRequestInfo" yaml:"addRequestInfo" json:"addRequestInfo"`
	SlowRequestThreshold   config.TimeDuration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`
}

// Set reads the "log" subsection.
func (l *LogConfig) Set(dp config.DataProvider) (err error) {
	for _, item := range []struct {
		key  string
		dest *[]string
	}{
		{cfgKeyServerLogRequestHeaders, &l.RequestHeaders},
		{cfgKeyServerLogExcludedEndpoints, &l.ExcludedEndpoints},
		{cfgKeyServerLogSecretQueryParams, &l.SecretQueryParams},
	} {
		if *item.dest, err = dp.GetStringSlice(item.key); err != nil {
			return err
		}
	}
	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.AddRequestInfoToLogger, err = dp.GetBool(cfgKeyServerLogAddRequestInfo); err != nil {
		return err
	}
	threshold, err := dp.GetDuration(cfgKeyServerLogSlowRequestThreshold)
	l.SlowRequestThreshold = config.TimeDuration(threshold)
	return err
}

// RateLimitConfig configures limiting of inbound requests.
// It protects the upstream queues from being flooded by a single client.
type RateLimitConfig struct {
	Enabled           bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Alg               ratelimit.Alg  `mapstructure:"alg" yaml:"alg" json:"alg"`
	Rate              ratelimit.Rate `mapstructure:"rate" yaml:"rate" json:"rate"`
	Burst             int            `mapstructure:"burst" yaml:"burst" json:"burst"`
	PerClient         bool           `mapstructure:"perClient" yaml:"perClient" json:"perClient"`
	TrustProxyHeaders bool           `mapstructure:"trustProxyHeaders" yaml:"trustProxyHeaders" json:"trustProxyHeaders"`
	MaxClients        int            `mapstructure:"maxClients" yaml:"maxClients" json:"maxClients"`
	ExcludedEndpoints []string       `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
	DryRun            bool           `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
}

// Set reads the "rateLimit" subsection.
func (rl *RateLimitConfig) Set(dp config.DataProvider) error {
	var err error

	if rl.Enabled, err = dp.GetBool(cfgKeyServerRateLimitEnabled); err != nil {
		return err
	}

	alg, err := dp.GetStringFromSet(cfgKeyServerRateLimitAlg, availableRateLimitAlgs, true)
	if err != nil {
		return err
	}
	rl.Alg = ratelimit.Alg(strings.ToLower(alg))

	rateStr, err := dp.GetString(cfgKeyServerRateLimitRate)
	if err != nil {
		return err
	}
	if rl.Rate, err = ratelimit.ParseRate(rateStr); err != nil {
		return dp.WrapKeyErr(cfgKeyServerRateLimitRate, err)
	}
	if rl.Enabled && rl.Rate.IsZero() {
		return dp.WrapKeyErr(cfgKeyServerRateLimitRate, fmt.Errorf("cannot be empty when rate limiting is enabled"))
	}

	if rl.Burst, err = dp.GetInt(cfgKeyServerRateLimitBurst); err != nil {
		return err
	}
	if rl.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyServerRateLimitBurst, fmt.Errorf("cannot be negative"))
	}
	if rl.PerClient, err = dp.GetBool(cfgKeyServerRateLimitPerClient); err != nil {
		return err
	}
	if rl.TrustProxyHeaders, err = dp.GetBool(cfgKeyServerRateLimitTrustProxy); err != nil {
		return err
	}
	if rl.MaxClients, err = dp.GetInt(cfgKeyServerRateLimitMaxClients); err != nil {
		return err
	}
	if rl.MaxClients < 0 {
		return dp.WrapKeyErr(cfgKeyServerRateLimitMaxClients, fmt.Errorf("cannot be negative"))
	}
	if rl.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerRateLimitExcluded); err != nil {
		return err
	}
	if rl.DryRun, err = dp.GetBool(cfgKeyServerRateLimitDryRun); err != nil {
		return err
	}
	return nil
}

// CORSConfig configures cross-origin access. Any origin is allowed when AllowedOrigins is empty.
type CORSConfig struct {
	AllowedOrigins []string            `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
	MaxAge         config.TimeDuration `mapstructure:"maxAge" yaml:"maxAge" json:"maxAge"`
}

// Set reads the "cors" subsection.
func (c *CORSConfig) Set(dp config.DataProvider) error {
	var err error
	if c.AllowedOrigins, err = dp.GetStringSlice(cfgKeyServerCORSAllowedOrigins); err != nil {
		return err
	}
	maxAge, err := dp.GetDuration(cfgKeyServerCORSMaxAge)
	if err != nil {
		return err
	}
	c.MaxAge = config.TimeDuration(maxAge)
	return nil
}
