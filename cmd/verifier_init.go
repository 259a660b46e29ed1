package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/broker-verify/internal/alert"
	"github.com/sells-group/broker-verify/internal/cache"
	"github.com/sells-group/broker-verify/internal/config"
	"github.com/sells-group/broker-verify/internal/regulatory"
	"github.com/sells-group/broker-verify/internal/reliability"
	"github.com/sells-group/broker-verify/internal/resilience"
	"github.com/sells-group/broker-verify/internal/scrape"
	"github.com/sells-group/broker-verify/internal/search"
	"github.com/sells-group/broker-verify/internal/store"
	"github.com/sells-group/broker-verify/internal/verify"
	"github.com/sells-group/broker-verify/pkg/serpapi"
)

// verifierEnv holds the initialized store, caches and verifier needed by the
// verify/batch/sources/serve commands.
type verifierEnv struct {
	Store       store.Store
	Redis       *cache.Redis // may be nil
	Search      *search.Engine
	Scraper     *scrape.Scraper
	Regulatory  *regulatory.Verifier
	Reliability *reliability.Manager
	Verifier    *verify.Verifier
}

// Close releases resources held by the environment.
func (ve *verifierEnv) Close() {
	if ve.Redis != nil {
		_ = ve.Redis.Close()
	}
	if ve.Store != nil {
		_ = ve.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
		Pool:        &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initVerifier wires every component from cfg. Missing credentials degrade
// the affected component instead of failing. Callers should defer env.Close().
func initVerifier(ctx context.Context, mode string) (*verifierEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &verifierEnv{Store: st}

	searchCache, regCache := localCaches(st)
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			zap.L().Warn("redis unavailable, using local caches", zap.Error(err))
		} else {
			env.Redis = rc
			searchCache, regCache = rc, rc
		}
	}

	table := reliability.DefaultTable()
	if cfg.Reliability.TableFile != "" {
		raw, err := os.ReadFile(cfg.Reliability.TableFile)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "read reliability table")
		}
		if table, err = reliability.LoadTable(raw); err != nil {
			env.Close()
			return nil, err
		}
	}
	env.Reliability = reliability.NewManager(st, reliability.WithTable(table))
	if err := env.Reliability.Seed(ctx); err != nil {
		zap.L().Warn("seeding data sources failed", zap.Error(err))
	}

	checkers, err := initCheckers()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Regulatory = regulatory.NewVerifier(
		regulatory.WithCheckers(checkers...),
		regulatory.WithCache(regCache),
		regulatory.WithCacheTTL(config.Hours(cfg.Regulatory.CacheTTLHours)),
		regulatory.WithCheckInterval(config.Millis(cfg.Regulatory.CheckIntervalMs)),
	)

	var client serpapi.Client
	if cfg.SerpAPI.Key != "" {
		client = serpapi.NewClient(cfg.SerpAPI.Key,
			serpapi.WithBaseURL(cfg.SerpAPI.BaseURL),
			serpapi.WithHTTPClient(&http.Client{Timeout: config.Seconds(cfg.SerpAPI.TimeoutSecs)}),
		)
	} else {
		zap.L().Warn("BROKERVERIFY_SERPAPI_KEY not set, web sources disabled")
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.SerpAPI.MaxRetries
	retry.ShouldRetry = func(error) bool { return true }
	retry.OnRetry = resilience.RetryLogger("serpapi", "search")
	env.Search = search.NewEngine(client,
		search.WithCache(searchCache),
		search.WithCacheTTL(config.Hours(cfg.SerpAPI.CacheTTLHours)),
		search.WithMinInterval(config.Millis(cfg.SerpAPI.MinIntervalMs)),
		search.WithRetry(retry),
	)

	env.Scraper = scrape.New(
		scrape.WithFetcher(scrape.NewFetcher(config.Seconds(cfg.Scrape.TimeoutSecs))),
		scrape.WithPathMatcher(scrape.NewPathMatcher(cfg.Scrape.ExcludePaths)),
		scrape.WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.Scrape.BreakerThreshold,
			Cooldown:         config.Seconds(cfg.Scrape.BreakerCooldownSecs),
		})),
		scrape.WithMaxConcurrent(cfg.Scrape.MaxConcurrent),
		scrape.WithRobots(cfg.Scrape.RespectRobots),
	)

	env.Verifier = verify.New(verify.Deps{
		Search:      env.Search,
		Scraper:     env.Scraper,
		Regulatory:  env.Regulatory,
		Reliability: env.Reliability,
		Store:       st,
		Notifier:    alert.NewNotifier(cfg.Alert.WebhookURL, config.Seconds(cfg.Alert.TimeoutSecs)),
	}, verify.WithWeights(cfg.Verify.Weights))

	zap.L().Debug("verifier initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", env.Redis != nil),
		zap.Bool("search", client != nil),
		zap.Bool("webhook", cfg.Alert.WebhookURL != ""),
	)
	return env, nil
}

// localCaches picks the caches used without Redis. Search results go to the
// store's table cache when persistence is on; regulatory results always stay
// in a bounded in-memory cache.
func localCaches(st store.Store) (searchCache, regCache cache.Cache) {
	regCache = cache.NewMemory(cfg.Regulatory.CacheMaxEntries)
	if _, noop := st.(*store.NoopStore); noop {
		return cache.NewMemory(cfg.SerpAPI.CacheMaxEntries), regCache
	}
	return st.Cache(cfg.SerpAPI.CacheMaxEntries), regCache
}

func initCheckers() ([]regulatory.Checker, error) {
	if cfg.Regulatory.RegistersFile == "" {
		return regulatory.DefaultCheckers(), nil
	}
	raw, err := os.ReadFile(cfg.Regulatory.RegistersFile)
	if err != nil {
		return nil, eris.Wrap(err, "read registers file")
	}
	regs, err := regulatory.LoadRegisters(raw)
	if err != nil {
		return nil, err
	}
	checkers := make([]regulatory.Checker, 0, len(regs))
	for _, r := range regs {
		checkers = append(checkers, regulatory.NewRegisterChecker(r))
	}
	return checkers, nil
}
