package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Cargo    CargoConfig    `yaml:"cargo"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port"`
	EventPublishedTopicName string `yaml:"event_published_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CargoConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// пустой host:port у клиента откатывается на 127.0.0.1:8080
	EventsHost string `yaml:"events_host"`

	CurrentStatusTTLSeconds int `yaml:"current_status_ttl_seconds"`
	UnreadCountTTLSeconds   int `yaml:"unread_count_ttl_seconds"`

	HandleStaleSeconds  int `yaml:"handle_stale_seconds"`
	HandleSweepSeconds  int `yaml:"handle_sweep_seconds"`
	HandshakeRateLimit  int `yaml:"handshake_rate_limit"`
	HandshakeWindowSecs int `yaml:"handshake_window_seconds"`
	ReconnectDelaySecs  int `yaml:"reconnect_delay_seconds"`
	GPSPollSeconds      int `yaml:"gps_poll_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
