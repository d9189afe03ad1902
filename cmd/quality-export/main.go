// Command quality-export runs one export against the quality API and writes
// the flattened output to local disk or S3.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/redis/go-redis/v9"

	"github.com/knowthefacts/quality-export/pkg/client"
	"github.com/knowthefacts/quality-export/pkg/export"
	"github.com/knowthefacts/quality-export/pkg/logging"
	"github.com/knowthefacts/quality-export/pkg/secrets"
	"github.com/knowthefacts/quality-export/pkg/storage"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") == "true",
		Output: os.Stderr,
	})

	ctx := context.Background()

	baseURL := os.Getenv("QUALITY_API_URL")
	if baseURL == "" {
		logger.Fatal().Msg("QUALITY_API_URL is required")
	}

	tokens, err := buildTokenProvider(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build token provider")
	}

	apiClient, err := client.New(client.Config{
		BaseURL:   baseURL,
		Tokens:    tokens,
		UserAgent: "quality-export/1.0.0",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	saver, err := buildSaver(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build storage backend")
	}

	exporter := export.New(apiClient, saver, export.Options{
		PageSize:    getEnvInt("PAGE_SIZE", export.DefaultPageSize),
		MaxPages:    getEnvInt("MAX_PAGES", 0),
		Concurrency: getEnvInt("CONCURRENCY", 0),
	})

	mode := getEnv("MODE", "all")
	total := 0

	if mode == "forms" || mode == "all" {
		count, err := exporter.ExportForms(ctx, formOptions())
		if err != nil {
			logger.Fatal().Err(err).Int("records", count).Msg("Form export failed")
		}
		total += count
	}

	if mode == "evaluations" || mode == "all" {
		startTime, endTime, err := timeRange()
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid time range")
		}

		collector := export.NewCollector(exporter)
		count, err := collector.Run(ctx, startTime, endTime)
		if err != nil {
			logger.Fatal().Err(err).Int("records", count).Msg("Evaluation export failed")
		}
		total += count
	}

	logger.Info().Int("records", total).Msg("Export complete")
}

// buildTokenProvider picks the token source: a static env token, or AWS
// Secrets Manager, optionally fronted by a Redis cache.
func buildTokenProvider(ctx context.Context) (secrets.Provider, error) {
	var provider secrets.Provider

	if token := os.Getenv("QUALITY_API_TOKEN"); token != "" {
		provider = secrets.Static(token)
	} else if secretID := os.Getenv("TOKEN_SECRET_ID"); secretID != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		provider = secrets.NewSecretsManager(secretsmanager.NewFromConfig(cfg), secretID)
	} else {
		return nil, fmt.Errorf("either QUALITY_API_TOKEN or TOKEN_SECRET_ID is required")
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to Redis: %w", err)
		}
		provider = secrets.NewCached(provider, redisClient, "quality-export:token", 0,
			logging.NewLogger("token-cache"))
	}

	return provider, nil
}

// buildSaver picks the storage backend from STORAGE (local|s3).
func buildSaver(ctx context.Context) (storage.Saver, error) {
	switch getEnv("STORAGE", "local") {
	case "local":
		return storage.NewLocal(getEnv("OUTPUT_DIR", "./out")), nil
	case "s3":
		bucket := os.Getenv("S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return storage.NewS3(s3.NewFromConfig(cfg), bucket, os.Getenv("S3_PREFIX")), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE value %q", os.Getenv("STORAGE"))
	}
}

// formOptions reads the traversal policies from the environment.
func formOptions() export.FormOptions {
	opts := export.FormOptions{}
	if getEnv("FORM_DETAIL", "inline") == "request" {
		opts.Detail = export.DetailRequest
	}
	if getEnv("FORM_NESTED", "expand") == "embed" {
		opts.Nested = export.NestedEmbed
	}
	return opts
}

// timeRange reads START_TIME/END_TIME (RFC3339), defaulting to the last 24h.
func timeRange() (time.Time, time.Time, error) {
	endTime := time.Now().UTC()
	startTime := endTime.Add(-24 * time.Hour)

	if v := os.Getenv("START_TIME"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse START_TIME: %w", err)
		}
		startTime = t
	}
	if v := os.Getenv("END_TIME"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse END_TIME: %w", err)
		}
		endTime = t
	}

	return startTime, endTime, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
