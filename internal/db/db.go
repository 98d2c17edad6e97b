package db

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// libpq parameters pgx understands; ORM-specific ones such as schema are
// dropped before parsing.
var pgQueryKeys = []string{
	"application_name", "channel_binding", "client_encoding", "connect_timeout",
	"gssencmode", "host", "keepalives", "keepalives_count", "keepalives_idle",
	"keepalives_interval", "krbsrvname", "options", "passfile", "service",
	"sslcert", "sslcrl", "sslkey", "sslmode", "sslpassword", "sslrootcert",
	"target_session_attrs",
}

var pgSchemeAliases = []string{"prisma+postgres://", "postgresql+psycopg://", "postgresql://"}

// ConnectPostgres opens the run-log pool and verifies it with a ping.
func ConnectPostgres(ctx context.Context, rawURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(normalizeDatabaseURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ConnectRedis opens the lookup-cache client and verifies it with a ping.
func ConnectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func normalizeDatabaseURL(rawURL string) string {
	normalized := strings.TrimSpace(rawURL)
	for _, alias := range pgSchemeAliases {
		if strings.HasPrefix(normalized, alias) {
			normalized = "postgres://" + strings.TrimPrefix(normalized, alias)
			break
		}
	}

	parsed, err := url.Parse(normalized)
	if err != nil || parsed.Scheme != "postgres" {
		return normalized
	}
	filtered := make(url.Values)
	for key, values := range parsed.Query() {
		if !slices.Contains(pgQueryKeys, key) {
			continue
		}
		for _, value := range values {
			filtered.Add(key, value)
		}
	}
	parsed.RawQuery = filtered.Encode()
	return parsed.String()
}
