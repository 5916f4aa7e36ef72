package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/crossfeed-labs/crossfeed/internal/config"
	"github.com/crossfeed-labs/crossfeed/internal/feed"
	"github.com/crossfeed-labs/crossfeed/internal/feed/binance"
	"github.com/crossfeed-labs/crossfeed/internal/feed/coinbase"
	"github.com/crossfeed-labs/crossfeed/internal/feed/kucoin"
	"github.com/crossfeed-labs/crossfeed/internal/feed/mexc"
	"github.com/crossfeed-labs/crossfeed/internal/logging"
)

// redisHSet adapts *redis.Client to the narrow feed.RedisClient contract.
type redisHSet struct {
	c *redis.Client
}

func (r redisHSet) HSet(ctx context.Context, key string, values ...any) error {
	return r.c.HSet(ctx, key, values...).Err()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	log.WithField("env", cfg.Env).Info("crossfeed starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := feed.NewHub(log)
	notifier := feed.NewLogNotifier(log)

	sup := feed.NewSupervisor(feed.SupervisorConfig{
		BackoffBase:   cfg.Feed.BackoffBase,
		BackoffCap:    cfg.Feed.BackoffCap,
		ShutdownGrace: cfg.Feed.ShutdownGrace,
	}, hub, notifier, log)

	streamCfg := func(src config.SourceConfig) feed.StreamConfig {
		return feed.StreamConfig{
			URL:              src.URL,
			ReceiveTimeout:   cfg.Feed.ReceiveTimeout,
			RetryPause:       cfg.Feed.RetryPause,
			FailureThreshold: cfg.Feed.FailureThreshold,
		}
	}
	httpClient := &http.Client{}
	pollCfg := func(src config.SourceConfig) feed.PollConfig {
		return feed.PollConfig{
			URL:              src.URL,
			Interval:         src.PollInterval,
			RequestTimeout:   cfg.Feed.RequestTimeout,
			FailureThreshold: cfg.Feed.FailureThreshold,
			Client:           httpClient,
		}
	}

	if cfg.Sources.Binance.Enabled {
		sup.Add(binance.New(streamCfg(cfg.Sources.Binance), log))
	}
	if cfg.Sources.Coinbase.Enabled {
		sup.Add(coinbase.New("", streamCfg(cfg.Sources.Coinbase), log))
	}
	if cfg.Sources.MEXC.Enabled {
		sup.Add(mexc.New(pollCfg(cfg.Sources.MEXC), log))
	}
	if cfg.Sources.KuCoin.Enabled {
		sup.Add(kucoin.New(pollCfg(cfg.Sources.KuCoin), log))
	}

	tracker := feed.NewStalenessTracker(cfg.Feed.StalenessWindow)
	agg := feed.NewQuoteAggregator(sup, tracker, notifier, cfg.Feed.MinProfit, log)
	mon := feed.NewLatencyMonitor(feed.LatencyMonitorConfig{
		Capacity:        cfg.Feed.LatencyRingSize,
		MinSamples:      cfg.Feed.LatencyMinSamples,
		SpikeMultiplier: cfg.Feed.SpikeMultiplier,
	}, notifier, log)

	var wg sync.WaitGroup

	aggFeed := hub.SubscribeAll()
	monFeed := hub.SubscribeAll()

	wg.Add(2)
	go func() {
		defer wg.Done()
		agg.Run(ctx, aggFeed)
	}()
	go func() {
		defer wg.Done()
		mon.Run(ctx, monFeed)
	}()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		writer := feed.NewBookWriter(redisHSet{c: rdb}, agg.Books(), log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			writer.Run(ctx)
		}()
		log.WithFields(logrus.Fields{"addr": cfg.Redis.Addr}).Info("consolidated-book mirror enabled")
	}

	// Blocks until shutdown, then waits out the grace period.
	sup.Run(ctx)

	wg.Wait()
	log.Info("crossfeed stopped")
}
