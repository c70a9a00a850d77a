package accesslog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise the client against a real Postgres instance.
// They use the default local connection; WEBSHIELD_TEST_DATABASE_URL,
// when set, replaces only its host (the value is used as a host name,
// not parsed as a URL). When no store is reachable they skip, matching the pack's
// convention of skipping integration tests when no live dependency is
// reachable.
func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := Config{
		Host:     "127.0.0.1",
		Port:     5432,
		User:     "webshield",
		Password: "webshield",
		Database: "webshield_test",
		Table:    "access_log",
	}

	if url := os.Getenv("WEBSHIELD_TEST_DATABASE_URL"); url != "" {
		cfg.Host = url
	}

	return cfg
}

func connectOrSkip(t *testing.T) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Connect(ctx, testConfig(t), nil)
	if err != nil {
		t.Skipf("no reachable access-log store: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnStringFormat(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d"}
	assert.Equal(t, "postgres://u:p@db:5432/d", cfg.connString())
}

func TestMigrateAndReplaceTables(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Migrate(ctx, cfg); err != nil {
		t.Skipf("no reachable access-log store: %v", err)
	}

	client := connectOrSkip(t)

	require.NoError(t, client.ReplaceUserAgents(ctx, []string{"curl/8.0", "Mozilla/5.0"}))
	require.NoError(t, client.ReplacePersistentUsers(ctx, []string{"10.0.0.1"}))

	rows, err := client.Query(ctx, "SELECT user_agent FROM user_agents ORDER BY user_agent")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
