package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/joshtmags/reservation-system/internal/api"
	"github.com/joshtmags/reservation-system/internal/api/handler"
	"github.com/joshtmags/reservation-system/internal/api/middleware"
	"github.com/joshtmags/reservation-system/internal/application"
	"github.com/joshtmags/reservation-system/internal/config"
	"github.com/joshtmags/reservation-system/internal/infrastructure/postgres"
	redisinfra "github.com/joshtmags/reservation-system/internal/infrastructure/redis"
)

var (
	testServer  *TestServer
	testDB      *sqlx.DB
	redisClient *redis.Client
)

// TestMain はE2Eテストのエントリポイント
// パッケージ全体で1回だけサーバーを起動することで高速化
func TestMain(m *testing.M) {
	cfg := config.Load()

	// DB接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		os.Exit(0) // DB未起動時はスキップ
	}
	testDB = db

	// マイグレーション実行
	if err := postgres.RunMigrations(db.DB, "../internal/infrastructure/postgres/migrations"); err != nil {
		db.Close()
		os.Exit(0)
	}

	// Redis接続
	rc, err := redisinfra.NewClient(&redisinfra.Config{
		Host: cfg.Redis.Host, Port: cfg.Redis.Port,
	})
	if err != nil {
		db.Close()
		os.Exit(0) // Redis未起動時はスキップ
	}
	redisClient = rc

	// サービス初期化
	lockManager := redisinfra.NewLockManager(redisClient)
	attemptLimiter := redisinfra.NewPinAttemptLimiter(redisClient, cfg.Pin.MaxConfirmAttempts, cfg.Pin.AttemptWindow)

	reservationRepo := postgres.NewReservationRepository(db)
	txManager := postgres.NewTxManager(db)
	reservationService := application.NewReservationService(txManager, reservationRepo, lockManager, attemptLimiter)

	reservationHandler := handler.NewReservationHandler(reservationService)
	healthHandler := handler.NewHealthHandler()

	// Echo セットアップ
	e := echo.New()
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)

	e.GET("/health", healthHandler.Check)

	v1 := e.Group("/api/v1")
	v1.POST("/reservations", reservationHandler.Create)
	v1.GET("/reservations", reservationHandler.List)
	v1.POST("/reservations/confirm", reservationHandler.Confirm)

	testServer = &TestServer{Echo: e}

	// テスト実行
	code := m.Run()

	// 最終クリーンアップ
	cleanupTables()
	redisClient.Close()
	db.Close()

	os.Exit(code)
}

// cleanupTables はテーブルと試行回数カウンタをクリーンアップ
func cleanupTables() {
	ctx := context.Background()
	testDB.Exec("TRUNCATE TABLE reservations RESTART IDENTITY CASCADE")
	if redisClient != nil {
		keys, _ := redisClient.Keys(ctx, "pin:attempts:*").Result()
		if len(keys) > 0 {
			redisClient.Del(ctx, keys...)
		}
	}
}

// getTestServer は共有サーバーを取得（テスト前にテーブルをクリーンアップ）
func getTestServer(t *testing.T) *TestServer {
	t.Helper()
	if testServer == nil {
		t.Skip("テスト環境が利用できません")
	}
	cleanupTables()
	return testServer
}
