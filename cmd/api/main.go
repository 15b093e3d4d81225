package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/joshtmags/reservation-system/internal/api"
	"github.com/joshtmags/reservation-system/internal/api/handler"
	"github.com/joshtmags/reservation-system/internal/api/middleware"
	"github.com/joshtmags/reservation-system/internal/application"
	"github.com/joshtmags/reservation-system/internal/config"
	"github.com/joshtmags/reservation-system/internal/infrastructure/postgres"
	redisinfra "github.com/joshtmags/reservation-system/internal/infrastructure/redis"
	"github.com/joshtmags/reservation-system/internal/pkg/logger"
	"github.com/joshtmags/reservation-system/internal/pkg/metrics"
	"github.com/joshtmags/reservation-system/internal/worker"
)

func main() {
	// ロガー初期化
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	logger.Set(logger.NewLogger(env))
	defer logger.Sync()

	cfg := config.Load()

	// メトリクス初期化
	m := metrics.Init()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション実行
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "internal/infrastructure/postgres/migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションエラー", zap.Error(err))
	}

	// Redis接続（確認の直列化と試行回数制限に使用）
	// 未起動でも起動は継続する: ストアの条件付き更新が最終防衛線
	var lockManager redisinfra.LockManagerInterface
	var attemptLimiter application.AttemptLimiter
	redisClient, err := redisinfra.NewClient(&redisinfra.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Warn("Redis接続エラー（ロックなしで継続）", zap.Error(err))
	} else {
		defer redisClient.Close()
		lockManager = redisinfra.NewLockManager(redisClient)
		attemptLimiter = redisinfra.NewPinAttemptLimiter(redisClient, cfg.Pin.MaxConfirmAttempts, cfg.Pin.AttemptWindow)
	}

	// サービス初期化
	reservationRepo := postgres.NewReservationRepository(db)
	txManager := postgres.NewTxManager(db)
	reservationService := application.NewReservationService(txManager, reservationRepo, lockManager, attemptLimiter)

	reservationHandler := handler.NewReservationHandler(reservationService)
	healthHandler := handler.NewHealthHandler()

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)
	e.Use(middleware.PrometheusMiddleware(m))

	e.GET("/health", healthHandler.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.POST("/reservations", reservationHandler.Create)
	v1.GET("/reservations", reservationHandler.List)
	v1.POST("/reservations/confirm", reservationHandler.Confirm)

	// フェーズゲージの定期更新ワーカー
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	gaugeRefresher := worker.NewStatusGaugeRefresher(reservationService, m, 30*time.Second)
	go gaugeRefresher.Start(workerCtx)

	// サーバー起動
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()
	logger.Info("サーバー起動", zap.String("port", cfg.Server.Port))

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")
	cancelWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
