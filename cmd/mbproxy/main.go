/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command mbproxy runs the rate-limited caching proxy in front of the MusicBrainz Web Service
// and the Cover Art Archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/musicranker/mbproxy/internal/libinfo"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/service"
)

func main() {
	if err := runApp(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runApp() error {
	cfgPath := flag.String("config", "config.yml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadAppConfig(*cfgPath, os.Getenv)
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	logger.Info("starting proxy",
		log.String("version", libinfo.GetVersion()),
		log.String("address", cfg.Server.Address),
		log.String("route_prefix", cfg.API.RoutePrefix),
		log.String("musicbrainz_url", cfg.MusicBrainz.BaseURL),
		log.String("cache_tier", string(cfg.Cache.Tier)),
		log.Duration("cache_ttl", time.Duration(cfg.Cache.TTL)),
	)

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize proxy", log.Error(err))
		return err
	}
	return service.New(logger, a.unit).Start()
}
