package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/freshroots/storefront/catalog"
	"github.com/freshroots/storefront/core"
	"github.com/freshroots/storefront/handlers"
	"github.com/freshroots/storefront/recipe"
	"github.com/freshroots/storefront/session"
	"github.com/freshroots/storefront/store"
	"github.com/freshroots/storefront/telemetry"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := core.NewProductionLogger(cfg.Name)

	var tel core.Telemetry = &core.NoOpTelemetry{}
	var otelProvider *telemetry.OTelProvider
	if cfg.Telemetry.Enabled {
		otelProvider, err = telemetry.NewOTelProvider(cfg.Name, cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Warn("Telemetry disabled, provider init failed", map[string]interface{}{
				"operation": "telemetry_init",
				"error":     err.Error(),
			})
		} else {
			tel = otelProvider
		}
	}

	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}
	logger.Info("Catalog loaded", map[string]interface{}{
		"operation":  "catalog_load",
		"products":   len(cat.Products("")),
		"categories": len(cat.Categories()),
	})

	// Insight cache: Redis when configured, in-process otherwise. Cart
	// state never touches this store.
	var memory core.Memory
	if cfg.Memory.RedisURL != "" {
		redisStore, err := core.NewRedisStore(core.RedisStoreOptions{
			RedisURL: cfg.Memory.RedisURL,
			Logger:   logger,
		})
		if err != nil {
			logger.Warn("Redis unavailable, using in-process cache", map[string]interface{}{
				"operation": "memory_init",
				"error":     err.Error(),
			})
		} else {
			memory = redisStore
			defer func() {
				_ = redisStore.Close()
			}()
		}
	}
	if memory == nil {
		ms := core.NewMemoryStore()
		ms.SetLogger(logger)
		memory = ms
	}

	gateway := recipe.NewGateway(cfg.AI,
		recipe.WithLogger(logger),
		recipe.WithTelemetry(tel),
		recipe.WithMemory(memory, cfg.Memory.InsightTTL),
	)

	carts := store.NewStore()
	sessions := session.NewManager()

	h := handlers.NewHandler(cat, carts, sessions, gateway, logger)
	mux := http.NewServeMux()
	h.Routes(mux)

	var handler http.Handler = mux
	handler = core.LoggingMiddleware(logger, cfg.Development.DevMode)(handler)
	handler = otelhttp.NewHandler(handler, "storefront")

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("Storefront listening", map[string]interface{}{
			"operation": "server_start",
			"port":      cfg.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down", map[string]interface{}{
		"operation": "server_shutdown",
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", map[string]interface{}{
			"operation": "server_shutdown",
			"error":     err.Error(),
		})
	}
	if otelProvider != nil {
		_ = otelProvider.Shutdown(ctx)
	}
}
