/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/musicranker/mbproxy/httpclient"
	"github.com/musicranker/mbproxy/httpserver"
	"github.com/musicranker/mbproxy/httpserver/middleware"
	"github.com/musicranker/mbproxy/internal/libinfo"
	"github.com/musicranker/mbproxy/internal/proxyapi"
	"github.com/musicranker/mbproxy/log"
	"github.com/musicranker/mbproxy/lrucache"
	"github.com/musicranker/mbproxy/profserver"
	"github.com/musicranker/mbproxy/respcache"
	"github.com/musicranker/mbproxy/respcache/disktier"
	"github.com/musicranker/mbproxy/respcache/redistier"
	"github.com/musicranker/mbproxy/restapi"
	"github.com/musicranker/mbproxy/scheduler"
	"github.com/musicranker/mbproxy/service"
	"github.com/musicranker/mbproxy/upstream"
)

const metricsNamespace = "mbproxy"

const (
	upstreamMusicBrainz = "musicbrainz"
	upstreamCoverArt    = "coverart"
)

const healthComponentCacheTier = "cache_tier"

// app is the composition root of the proxy.
type app struct {
	unit       *service.CompositeUnit
	httpServer *httpserver.HTTPServer
}

// resources is a service unit owning the components that have no lifecycle of their own
// (schedulers, cache tiers, metrics collectors). It releases them on Stop.
type resources struct {
	closers    []func() error
	registerer []service.MetricsRegisterer
	logger     log.FieldLogger
}

var _ service.Unit = (*resources)(nil)
var _ service.MetricsRegisterer = (*resources)(nil)

func (r *resources) Start(chan<- error) {}

func (r *resources) Stop(bool) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Error("error while releasing resource", log.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *resources) MustRegisterMetrics() {
	for _, mr := range r.registerer {
		mr.MustRegisterMetrics()
	}
}

func (r *resources) UnregisterMetrics() {
	for _, mr := range r.registerer {
		mr.UnregisterMetrics()
	}
}

// metricsRegisterer adapts a pair of register/unregister functions to service.MetricsRegisterer.
type metricsRegisterer struct {
	register   func()
	unregister func()
}

func (m metricsRegisterer) MustRegisterMetrics() { m.register() }
func (m metricsRegisterer) UnregisterMetrics()   { m.unregister() }

// newApp wires all components of the proxy. Resources acquired before a failure are released.
func newApp(ctx context.Context, cfg *AppConfig, logger log.FieldLogger) (_ *app, err error) {
	res := &resources{logger: logger}
	defer func() {
		if err != nil {
			_ = res.Stop(false)
		}
	}()

	schedulerMetrics := scheduler.NewPrometheusMetricsWithOpts(scheduler.PrometheusMetricsOpts{Namespace: metricsNamespace})
	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{Namespace: metricsNamespace})
	clientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	res.registerer = append(res.registerer,
		metricsRegisterer{schedulerMetrics.MustRegister, schedulerMetrics.Unregister},
		metricsRegisterer{cacheMetrics.MustRegister, cacheMetrics.Unregister},
		metricsRegisterer{clientMetrics.MustRegister, clientMetrics.Unregister},
		metricsRegisterer{func() { restapi.MustInitAndRegisterMetrics(metricsNamespace) }, restapi.UnregisterMetrics},
	)

	tier, expiredDeleters, healthCheck, err := newCacheTier(ctx, cfg, logger, res)
	if err != nil {
		return nil, err
	}
	cache, err := respcache.New(respcache.Options{
		TTL:              time.Duration(cfg.Cache.TTL),
		MaxEntries:       cfg.Cache.MaxEntries,
		Tier:             tier,
		TierTimeout:      time.Duration(cfg.Cache.TierTimeout),
		MetricsCollector: cacheMetrics,
		Logger:           log.NewPrefixedLogger(logger, "cache: "),
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	expiredDeleters = append(expiredDeleters, cache)

	mbScheduler, err := newUpstreamScheduler(upstreamMusicBrainz, cfg.MusicBrainz, cfg, logger, schedulerMetrics, clientMetrics)
	if err != nil {
		return nil, err
	}
	res.closers = append(res.closers, func() error { mbScheduler.Close(); return nil })
	caScheduler, err := newUpstreamScheduler(upstreamCoverArt, cfg.CoverArt, cfg, logger, schedulerMetrics, clientMetrics)
	if err != nil {
		return nil, err
	}
	res.closers = append(res.closers, func() error { caScheduler.Close(); return nil })

	handlerOpts := proxyapi.NewOptsFromConfig(cfg.API)
	handlerOpts.MusicBrainz = proxyapi.Upstream{
		Name: upstreamMusicBrainz, Submitter: mbScheduler, UserAgent: cfg.MusicBrainz.UserAgent}
	handlerOpts.CoverArt = proxyapi.Upstream{
		Name: upstreamCoverArt, Submitter: caScheduler, UserAgent: cfg.CoverArt.UserAgent}
	handlerOpts.Cache = cache
	handler, err := proxyapi.NewHandler(handlerOpts)
	if err != nil {
		return nil, fmt.Errorf("create proxy handler: %w", err)
	}

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		RoutePrefix: cfg.API.RoutePrefix,
		Routes:      handler.Register,
		ErrorDomain: proxyapi.ErrorDomain,
		HealthCheck: healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{
			Namespace:   metricsNamespace,
			ConstLabels: libinfo.AddPrometheusVersionLabel(nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create http server: %w", err)
	}

	units := []service.Unit{
		httpServer,
		respcache.NewSweeper(time.Duration(cfg.Cache.SweepInterval), logger, expiredDeleters...),
		res,
	}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, log.NewPrefixedLogger(logger, "profserver: ")))
	}
	return &app{unit: service.NewCompositeUnit(units...), httpServer: httpServer}, nil
}

// newCacheTier opens the configured second-level tier. Its release is registered in res.
func newCacheTier(
	ctx context.Context, cfg *AppConfig, logger log.FieldLogger, res *resources,
) (respcache.Tier, []respcache.ExpiredDeleter, httpserver.HealthCheck, error) {
	switch cfg.Cache.Tier {
	case respcache.TierRedis:
		client, err := redistier.Connect(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		tier := redistier.New(client, redistier.Options{KeyPrefix: cfg.Redis.RedisKeyPrefix})
		res.closers = append(res.closers, tier.Close)
		return tier, nil, newRedisHealthCheck(client), nil

	case respcache.TierDisk:
		tier, err := disktier.Open(ctx, cfg.Cache.Disk.Path, disktier.Options{Logger: logger})
		if err != nil {
			return nil, nil, nil, err
		}
		res.closers = append(res.closers, tier.Close)
		logger.Info("disk cache tier opened", log.String("path", cfg.Cache.Disk.Path))
		return tier, []respcache.ExpiredDeleter{tier}, nil, nil

	default:
		return nil, nil, nil, nil
	}
}

func newRedisHealthCheck(client *redis.Client) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if err := client.Ping(ctx).Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{healthComponentCacheTier: status}, nil
	}
}

func newUpstreamScheduler(
	name string,
	upCfg *upstream.Config,
	cfg *AppConfig,
	logger log.FieldLogger,
	schedulerMetrics *scheduler.PrometheusMetrics,
	clientMetrics httpclient.MetricsCollector,
) (*scheduler.Scheduler, error) {
	client, err := httpclient.NewWithOpts(cfg.HTTPClient, httpclient.Opts{
		UserAgent:   upCfg.UserAgent,
		RequestType: name,
		Collector:   clientMetrics,
		LoggerProvider: func(ctx context.Context) log.FieldLogger {
			if l := middleware.GetLoggerFromContext(ctx); l != nil {
				return l
			}
			return logger
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s http client: %w", name, err)
	}
	transport, err := upstream.NewHTTPTransport(upCfg.BaseURL, client, upstream.HTTPTransportOpts{
		MaxResponseSize: int64(upCfg.MaxResponseSize),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", name, err)
	}
	opts := upCfg.SchedulerOptions(name)
	opts.Logger = logger
	opts.MetricsCollector = schedulerMetrics.ForUpstream(name)
	return scheduler.New(transport, opts), nil
}
