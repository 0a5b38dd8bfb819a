package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"uctrader/internal/app"
)

// requiredEnv must come from .env or the environment, containers cannot
// provide them
var requiredEnv = []string{"TELEGRAM_BOT_TOKEN", "OWNER_ID", "ADMIN_CHANNEL_ID", "MIDAS_API_KEY"}

func main() {
	ctx := context.Background()

	log.Println("Starting ClickHouse testcontainer...")

	clickhouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:latest",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword("devpassword"),
		clickhouse.WithDatabase("default"),
	)
	if err != nil {
		log.Fatalf("Failed to start ClickHouse container: %v", err)
	}
	defer func() {
		log.Println("Stopping ClickHouse container...")
		if err := clickhouseContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate container: %v", err)
		}
	}()

	host, err := clickhouseContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}

	port, err := clickhouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		log.Fatalf("Failed to get container port: %v", err)
	}

	log.Printf("ClickHouse started at %s:%s", host, port.Port())

	os.Setenv("CLICKHOUSE_HOST", host)
	os.Setenv("CLICKHOUSE_PORT", port.Port())
	os.Setenv("CLICKHOUSE_DATABASE", "default")
	os.Setenv("CLICKHOUSE_USER", "default")
	os.Setenv("CLICKHOUSE_PASSWORD", "devpassword")
	os.Setenv("CLICKHOUSE_USE_TLS", "false")
	os.Setenv("USE_MOCK_DB", "false")
	os.Setenv("WEBHOOK_MODE", "false")

	// Rate limiter state goes to a throwaway Redis unless one is configured
	if os.Getenv("REDIS_ADDR") == "" {
		log.Println("Starting Redis testcontainer...")
		redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			log.Fatalf("Failed to start Redis container: %v", err)
		}
		defer func() {
			log.Println("Stopping Redis container...")
			if err := redisContainer.Terminate(ctx); err != nil {
				log.Printf("Failed to terminate container: %v", err)
			}
		}()

		endpoint, err := redisContainer.Endpoint(ctx, "")
		if err != nil {
			log.Fatalf("Failed to get Redis endpoint: %v", err)
		}
		log.Printf("Redis started at %s", endpoint)
		os.Setenv("REDIS_ADDR", endpoint)
	}

	if os.Getenv("PORT") == "" {
		os.Setenv("PORT", "8080")
	}

	for _, key := range requiredEnv {
		if os.Getenv(key) == "" {
			log.Printf("⚠️  %s not set. Please set it in your .env file or environment.", key)
		}
	}

	log.Println("Starting application with ClickHouse backend...")
	fmt.Println()

	application, err := app.New()
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return
	}

	// Run handles SIGINT and SIGTERM and returns after a graceful shutdown,
	// so the deferred container cleanup still runs
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}
