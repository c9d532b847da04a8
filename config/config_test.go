package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  event_published_topic_name: "event.published"
redis:
  host: "localhost"
  port: 6379
cargo:
  http_addr: ":8080"
  kafka_consumer_group: "cargo-api"
  events_host: "events.local:8080"
  current_status_ttl_seconds: 600
  unread_count_ttl_seconds: 60
  handle_stale_seconds: 90
  handshake_rate_limit: 10
  reconnect_delay_seconds: 3
  gps_poll_seconds: 15
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "event.published", cfg.Kafka.EventPublishedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.Cargo.HTTPAddr)
	require.Equal(t, 3, cfg.Cargo.ReconnectDelaySecs)
	require.Equal(t, 90, cfg.Cargo.HandleStaleSeconds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
