// Command activity-updater appends queued activities to board logs and tells
// watching clients the log changed.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"taskboard/board-api/boards"
	"taskboard/board-api/storage"
	"taskboard/internal/redisconn"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("activity updater starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	queueName := os.Getenv("ACTIVITY_QUEUE")
	if connStr == "" || queueName == "" {
		log.Fatal("missing storage config")
	}
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo storage.Repository
	switch os.Getenv("STORAGE_BACKEND") {
	case "postgres":
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			log.Fatal("missing DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		repo = storage.NewPgRepository(pool)
	default:
		table := os.Getenv("BOARDS_TABLE")
		if table == "" {
			log.Fatal("missing BOARDS_TABLE")
		}
		r, err := storage.NewTableRepository(connStr, table)
		if err != nil {
			log.Fatalf("boards table: %v", err)
		}
		repo = r
	}

	queue, err := storage.NewActivityQueue(connStr, queueName)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}
	rc, err := redisconn.NewClient(redisConn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rc.Close()

	// The board API caches board documents in the same Redis, so writes go
	// through the cache to evict them.
	repo = storage.NewCache(repo, rc, 0)
	svc := boards.New(repo, storage.NewPublisher(rc), nil, boards.Options{Logger: log.StandardLogger()})

	run(ctx, queue, svc, time.Second)
	log.Info("activity updater stopped")
}
