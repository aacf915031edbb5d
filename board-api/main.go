// Command board-api serves boards over HTTP and announces every board write
// on the board's Redis topic.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskboard/board-api/api"
	"taskboard/board-api/boards"
	"taskboard/board-api/storage"
	"taskboard/internal/redisconn"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	ctx := context.Background()

	repo, err := openRepository(ctx)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc, err := redisconn.NewClient(redisConn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	cacheTTL := durationEnv("BOARD_CACHE_TTL", 5*time.Minute)
	repo = storage.NewCache(repo, rc, cacheTTL)

	// Without a queue activities are written inline.
	var queue boards.ActivityQueue
	if name := os.Getenv("ACTIVITY_QUEUE"); name != "" {
		q, err := storage.NewActivityQueue(os.Getenv("STORAGE_CONNECTION_STRING"), name)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		queue = q
	}

	logger := log.StandardLogger()
	svc := boards.New(repo, storage.NewPublisher(rc), queue, boards.Options{Logger: logger})
	deduper := api.NewRedisDeduper(rc, durationEnv("DEDUPER_TTL", 24*time.Hour))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	api.Register(e, svc, newAuth(), deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("BOARD_API_PORT"); ok {
		listenAddr = ":" + val
	}
	e.Logger.Fatal(e.Start(listenAddr))
}

func openRepository(ctx context.Context) (storage.Repository, error) {
	switch backend := os.Getenv("STORAGE_BACKEND"); backend {
	case "", "azure":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		table := os.Getenv("BOARDS_TABLE")
		if connStr == "" || table == "" {
			return nil, fmt.Errorf("missing storage config")
		}
		return storage.NewTableRepository(connStr, table)
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return nil, fmt.Errorf("missing DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		repo := storage.NewPgRepository(pool)
		if err := repo.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("ensure boards table: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}
}

func newAuth() *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		secret := os.Getenv("TEST_JWT_SECRET")
		if secret == "" {
			log.Fatal("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		return api.NewTestAuth([]byte(secret))
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", domain), keyfunc.Options{
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			log.WithError(err).Warn("jwks refresh failed")
		},
	})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	auth := api.NewAuth(jwks, audience, "https://"+domain+"/")
	auth.KeyTTL = durationEnv("JWKS_CACHE_TTL", auth.KeyTTL)
	return auth
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return d
}
