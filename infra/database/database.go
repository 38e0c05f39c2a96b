// Package database initializes the storage clients.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voiceout_server/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// NewPostgres connects to PostgreSQL through the pgx stdlib driver.
func NewPostgres(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", withSimpleProtocol(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.Info("PostgreSQL connected")
	return db, nil
}

// withSimpleProtocol forces the simple query protocol, which keeps pgx
// compatible with connection poolers like pgbouncer.
func withSimpleProtocol(url string) string {
	if strings.Contains(url, "default_query_exec_mode") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "default_query_exec_mode=simple_protocol"
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Redis connected")
	return client, nil
}
