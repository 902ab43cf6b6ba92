/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cast"

	"github.com/musicranker/mbproxy/config"
	"github.com/musicranker/mbproxy/httpclient"
	"github.com/musicranker/mbproxy/httpserver"
	"github.com/musicranker/mbproxy/internal/proxyapi"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/profserver"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/respcache/redistier"
	"github.com/musicranker/mbproxy/upstream"
)

// envVarsPrefix is a prefix of environment variables overriding configuration keys
// (e.g. MBPROXY_CACHE_TTL overrides cache.ttl).
const envVarsPrefix = "mbproxy"

// Environment variables supported for compatibility with existing deployments.
const (
	envPort                 = "PORT"
	envCacheDuration        = "CACHE_DURATION" // milliseconds
	envMusicBrainzAPIURL    = "MUSICBRAINZ_API_URL"
	envMusicBrainzUserAgent = "MUSICBRAINZ_USER_AGENT"
)

// AppConfig is the configuration of the proxy.
type AppConfig struct {
	Server      *httpserver.Config
	Log         *log.Config
	ProfServer  *profserver.Config
	Cache       *respcache.Config
	Redis       *redistier.Config
	MusicBrainz *upstream.Config
	CoverArt    *upstream.Config
	HTTPClient  *httpclient.Config
	API         *proxyapi.Config
}

// NewAppConfig creates a new AppConfig with all sections read from their default keys.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:      httpserver.NewConfig(),
		Log:         log.NewConfig(),
		ProfServer:  profserver.NewConfig(),
		Cache:       respcache.NewConfig(),
		Redis:       redistier.NewConfig(),
		MusicBrainz: upstream.NewMusicBrainzConfig(),
		CoverArt:    upstream.NewCoverArtConfig(),
		HTTPClient:  httpclient.NewConfig(),
		API:         proxyapi.NewConfig(),
	}
}

func (c *AppConfig) sections() []config.Config {
	return []config.Config{
		c.Server, c.Log, c.ProfServer, c.Cache, c.Redis, c.MusicBrainz, c.CoverArt, c.HTTPClient, c.API,
	}
}

// loadAppConfig loads the configuration from the file (if it exists), MBPROXY_* environment variables
// and the legacy environment variables, in the increasing order of precedence.
func loadAppConfig(path string, getenv func(string) string) (*AppConfig, error) {
	cfg := NewAppConfig()
	sections := cfg.sections()
	loader := config.NewDefaultLoader(envVarsPrefix)

	var err error
	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			err = loader.LoadFromFile(path, config.DataTypeYAML, sections[0], sections[1:]...)
		case errors.Is(statErr, fs.ErrNotExist):
			err = loader.Load(sections[0], sections[1:]...)
		default:
			return nil, fmt.Errorf("stat config file: %w", statErr)
		}
	} else {
		err = loader.Load(sections[0], sections[1:]...)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err = applyLegacyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLegacyEnv(cfg *AppConfig, getenv func(string) string) error {
	if port := getenv(envPort); port != "" {
		portNum, err := cast.ToUint16E(port)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", envPort, port)
		}
		cfg.Server.Address = fmt.Sprintf(":%d", portNum)
	}

	if cacheDuration := getenv(envCacheDuration); cacheDuration != "" {
		ms, err := cast.ToInt64E(cacheDuration)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s: must be a positive number of milliseconds, got %q", envCacheDuration, cacheDuration)
		}
		cfg.Cache.TTL = config.TimeDuration(time.Duration(ms) * time.Millisecond)
	}

	if apiURL := getenv(envMusicBrainzAPIURL); apiURL != "" {
		parsedURL, err := url.Parse(apiURL)
		if err != nil || !parsedURL.IsAbs() || parsedURL.Host == "" {
			return fmt.Errorf("%s: must be an absolute URL, got %q", envMusicBrainzAPIURL, apiURL)
		}
		cfg.MusicBrainz.BaseURL = apiURL
	}

	if userAgent := getenv(envMusicBrainzUserAgent); userAgent != "" {
		cfg.MusicBrainz.UserAgent = userAgent
		cfg.CoverArt.UserAgent = userAgent
	}
	return nil
}
