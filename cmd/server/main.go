package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/eduparty/game-backend/internal/config"
	"github.com/eduparty/game-backend/internal/httpapi"
	"github.com/eduparty/game-backend/internal/hub"
	"github.com/eduparty/game-backend/internal/lobby"
	"github.com/eduparty/game-backend/internal/persist"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Without a database every credential resolves to a guest identity
	// and outcomes stay in memory; handy for local play.
	var resolver persist.Resolver
	var sink lobby.ResultSink
	if cfg.DatabaseURL != "" {
		store, err := persist.Open(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("failed to open database", zap.Error(err))
		}
		resolver, sink = store, store
	} else {
		logger.Warn("DATABASE_URL not set, running with in-memory guest auth")
		mem := persist.NewMemory(true)
		resolver, sink = mem, mem
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, hub.Deps{Logger: logger, Sink: sink})

	handler := httpapi.SetupRoutes(h, resolver, logger)

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
