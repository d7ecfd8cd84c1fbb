package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/conversation"
	"github.com/atelierhq/atelier/internal/db"
	"github.com/atelierhq/atelier/internal/dispute"
	"github.com/atelierhq/atelier/internal/hooks"
	"github.com/atelierhq/atelier/internal/logger"
	appmw "github.com/atelierhq/atelier/internal/middleware"
	"github.com/atelierhq/atelier/internal/order"
	"github.com/atelierhq/atelier/internal/realtime"
	"github.com/atelierhq/atelier/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.DSN(), zlog)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		zlog.Fatal("schema bootstrap failed", zap.Error(err))
	}

	queue := hooks.New(cfg.Redis.Addr, zlog)
	defer queue.Close()

	hub := realtime.NewHub(zlog)
	fan := realtime.NewFanout(hub)

	convStore := conversation.NewPostgresStore(pool)
	orderStore := order.NewPostgresStore(pool)
	disputes := dispute.NewPostgresStore(pool, zlog)
	files := storage.NewDiskStore(cfg.Storage.Dir)

	engine := order.NewEngine(orderStore, convStore, fan, queue, disputes, zlog)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	api := e.Group("")
	api.Use(appmw.JWT([]byte(cfg.Server.JWTSecret)))

	conversation.NewHandler(convStore, fan, zlog).Register(api)
	order.NewHandler(engine, orderStore, files, zlog).Register(api)
	realtime.NewHandler(hub, orderStore, convStore, zlog).Register(api)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zlog.Info("api server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown failed", zap.Error(err))
	}
}
