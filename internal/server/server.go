package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/internal/analyzer"
	"github.com/mohammad-safakhou/prosora/internal/draft"
	"github.com/mohammad-safakhou/prosora/internal/evidence"
	"github.com/mohammad-safakhou/prosora/internal/feedback"
	"github.com/mohammad-safakhou/prosora/internal/fetcher"
	"github.com/mohammad-safakhou/prosora/internal/knowledge"
	"github.com/mohammad-safakhou/prosora/internal/pipeline"
	"github.com/mohammad-safakhou/prosora/internal/queue/streams"
	"github.com/mohammad-safakhou/prosora/internal/registry"
	"github.com/mohammad-safakhou/prosora/internal/store"
	"github.com/mohammad-safakhou/prosora/internal/synth"
	"github.com/mohammad-safakhou/prosora/internal/telemetry"
	"github.com/mohammad-safakhou/prosora/provider"
	"github.com/mohammad-safakhou/prosora/tools/web_fetch"
	"github.com/mohammad-safakhou/prosora/tools/web_search"
)

// Run wires the engine together and serves the HTTP API until the
// process is stopped.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()

	sources, vocab, err := config.LoadSourceFile(cfg.Sources.File, log.New(log.Writer(), "[SOURCES] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	reg := registry.New(sources, vocab, log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags))

	st, err := store.New(cfg.Storage.Postgres, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
	if err != nil {
		return err
	}
	if creds, err := st.LoadSourceCredibilities(ctx); err != nil {
		baseLogger.Printf("learned credibility restore failed, using configured values: %v", err)
	} else {
		for id, cred := range creds {
			_ = reg.SetCredibility(id, cred)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.NewTelemetry(nil)
	}

	pageFetcher, err := web_fetch.NewFetcher(web_fetch.FetcherType(cfg.Fetch.FetcherType), cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
	if err != nil {
		return err
	}
	cache := fetcher.NewCache(rdb, log.New(log.Writer(), "[CACHE] ", log.LstdFlags))
	fetchLogger := log.New(log.Writer(), "[FETCH] ", log.LstdFlags)
	fe := fetcher.New(cfg.Fetch, reg, fetcher.WebClient{Fetcher: pageFetcher}, cache, tele, fetchLogger)

	refresher := &fetcher.Refresher{Fetcher: fe, Spec: cfg.Fetch.RefreshCron, Logger: fetchLogger}
	if err := refresher.Start(); err != nil {
		return fmt.Errorf("refresh scheduler: %w", err)
	}
	defer refresher.Stop()

	stopWatch, err := config.WatchSourceFile(cfg.Sources.File, fetchLogger, reg.Reload)
	if err != nil {
		baseLogger.Printf("source hot reload disabled: %v", err)
	} else {
		defer stopWatch()
	}

	var llm provider.Provider
	if p, err := provider.NewProvider(cfg.LLM); err != nil {
		baseLogger.Printf("generation provider unavailable, drafts will use the template fallback: %v", err)
	} else {
		llm = p
	}

	var searcher web_search.Searcher
	if s, err := web_search.NewSearcher(web_search.Provider(cfg.Search.Provider), cfg.Search.APIKey); err != nil {
		baseLogger.Printf("search provider unavailable, insights will carry no evidence: %v", err)
	} else {
		searcher = s
	}

	engine := feedback.NewEngine(cfg.Feedback, reg, st, tele, log.New(log.Writer(), "[LEARN] ", log.LstdFlags))
	if err := engine.Restore(ctx); err != nil {
		baseLogger.Printf("pattern restore failed, starting with empty learning state: %v", err)
	}

	pipe := pipeline.New(
		cfg.Pipeline,
		analyzer.New(vocab),
		fe,
		knowledge.NewBuilder(vocab),
		synth.New(cfg.Pipeline, engine, log.New(log.Writer(), "[SYNTH] ", log.LstdFlags)),
		evidence.New(cfg.Search, searcher, tele, log.New(log.Writer(), "[EVIDENCE] ", log.LstdFlags)),
		draft.New(llm, engine, tele, log.New(log.Writer(), "[DRAFT] ", log.LstdFlags)),
		st,
		tele,
		log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	)

	api := e.Group("/api")
	(&QueryHandler{Pipeline: pipe, Logger: baseLogger}).Register(api.Group("/query"))
	(&PerformanceHandler{
		Publisher: streams.NewPublisher(rdb),
		Engine:    engine,
		Stream:    cfg.Feedback.Stream,
		Logger:    baseLogger,
	}).Register(api.Group("/performance"))
	(&SourcesHandler{Registry: reg}).Register(api.Group("/sources"))
	(&PatternsHandler{Engine: engine}).Register(api.Group("/patterns"))

	return e.Start(cfg.Server.Address)
}

// RunLearner starts the feedback worker that drains the performance
// stream. Used by the learn subcommand.
func RunLearner(cfg *config.Config) error {
	logger := log.New(log.Writer(), "[LEARN] ", log.LstdFlags)

	sources, vocab, err := config.LoadSourceFile(cfg.Sources.File, logger)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	reg := registry.New(sources, vocab, logger)

	st, err := store.New(cfg.Storage.Postgres, log.New(log.Writer(), "[STORE] ", log.LstdFlags))
	if err != nil {
		return err
	}
	ctx := context.Background()
	if creds, err := st.LoadSourceCredibilities(ctx); err == nil {
		for id, cred := range creds {
			_ = reg.SetCredibility(id, cred)
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	var tele *telemetry.Telemetry
	if cfg.Telemetry.Enabled {
		tele = telemetry.NewTelemetry(nil)
	}

	engine := feedback.NewEngine(cfg.Feedback, reg, st, tele, logger)
	if err := engine.Restore(ctx); err != nil {
		logger.Printf("pattern restore failed, starting with empty learning state: %v", err)
	}

	hostname, _ := os.Hostname()
	worker, err := feedback.NewWorker(cfg.Feedback, rdb, engine, st, "learner-"+hostname, logger)
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}
