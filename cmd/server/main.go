package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/matchdesk/matchdesk/internal/coordinator"
	"github.com/matchdesk/matchdesk/internal/gsi"
	"github.com/matchdesk/matchdesk/internal/httpapi"
	"github.com/matchdesk/matchdesk/internal/hub"
	"github.com/matchdesk/matchdesk/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	port := envOr("PORT", "1349")
	dbPath := envOr("MATCHDESK_DB", "matchdesk.db")

	ctx := context.Background()
	digester := gsi.NewDigester(logger.Named("gsi"))
	h := hub.New(ctx, digester, logger.Named("hub"))

	st, err := store.Open(store.Config{
		Path:      dbPath,
		Publisher: h,
		Logger:    logger.Named("store"),
	})
	if err != nil {
		logger.Fatal("opening match store", zap.Error(err))
	}
	defer st.Close()

	coord := coordinator.New(digester, st, h, logger.Named("coordinator"))
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Store:  st,
		Coord:  coord,
		Hub:    h,
		Logger: logger,
	})

	logger.Info("listening", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
