package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	historymongo "github.com/moneywise-vn/advisor/features/history/mongo"
	memoryredis "github.com/moneywise-vn/advisor/features/memory/redis"
	"github.com/moneywise-vn/advisor/features/model/anthropic"
	"github.com/moneywise-vn/advisor/features/model/middleware"
	"github.com/moneywise-vn/advisor/features/model/openai"
	"github.com/moneywise-vn/advisor/runtime/advisor/config"
	"github.com/moneywise-vn/advisor/runtime/advisor/memory"
	"github.com/moneywise-vn/advisor/runtime/advisor/model"
	"github.com/moneywise-vn/advisor/runtime/advisor/orchestrator"
	"github.com/moneywise-vn/advisor/runtime/advisor/telemetry"
	"github.com/moneywise-vn/advisor/runtime/advisor/tools"
)

func main() {
	var (
		configF = flag.String("config", "", "Path to YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := LoadConfig(*configF)
	if err != nil {
		log.Fatalf(ctx, err, "invalid configuration")
	}
	log.Print(ctx,
		log.KV{K: "http-addr", V: cfg.HTTP.Addr},
		log.KV{K: "provider", V: cfg.Provider.Name},
		log.KV{K: "model", V: cfg.Provider.Model},
	)

	client, err := buildModelClient(cfg.Provider)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build model client")
	}
	if cfg.Provider.InitialTPM > 0 {
		limiter := middleware.NewAdaptiveRateLimiter(cfg.Provider.InitialTPM, cfg.Provider.MaxTPM)
		client = limiter.Middleware()(client)
	}

	var store memory.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store, err = memoryredis.NewStore(memoryredis.Options{
			Client: rdb,
			TTL:    cfg.Redis.TTL.Std(),
		})
		if err != nil {
			log.Fatalf(ctx, err, "failed to build redis memory store")
		}
	}

	var history *historymongo.Store
	if cfg.Mongo.URI != "" {
		mc, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			log.Fatalf(ctx, err, "failed to connect to mongo")
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Disconnect(dctx)
		}()
		history, err = historymongo.NewStore(ctx, historymongo.Options{
			Client:     mc,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			log.Fatalf(ctx, err, "failed to build mongo history store")
		}
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Resolver:  config.Default(),
		Registry:  tools.DefaultRegistry(),
		Client:    client,
		Memory:    store,
		Model:     cfg.Provider.Model,
		MaxTokens: cfg.Provider.MaxTokens,
		Logger:    telemetry.NewClueLogger(),
		Metrics:   telemetry.NewClueMetrics(),
		Tracer:    telemetry.NewClueTracer(),
	})
	if err != nil {
		log.Fatalf(ctx, err, "failed to build orchestrator")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", newChatHandler(orch, history))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: log.HTTP(ctx)(mux),
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf(ctx, "HTTP server listening on %s", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	log.Printf(ctx, "exiting (%v)", <-errc)

	sctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Errorf(ctx, err, "graceful shutdown failed")
	}
	wg.Wait()
	log.Printf(ctx, "exited")
}

func buildModelClient(cfg ProviderConfig) (model.Client, error) {
	switch cfg.Name {
	case "openai":
		c, err := openai.NewFromAPIKey(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "anthropic":
		c, err := anthropic.NewFromAPIKey(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Name)
	}
}
