package main

import (
	"fmt"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/config"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/api/eventsapi"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/broker/kafka"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache/rediscache"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/dispatch"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/hub"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/integrations/gpsfeed/fake"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/feeder"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/lifecycle"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/services/unread"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/storage/pgbooking"
)

type cargoAPIApp struct {
	opts       cargoAPIOpts
	hub        *hub.Hub
	dispatcher *dispatch.Dispatcher
	api        *eventsapi.API
	feeder     *feeder.Feeder
	consumer   *kafka.Consumer
	producer   *kafka.Producer
	closeDB    func()
}

func mustBootstrapCargoAPI(cfg *config.Config, swaggerPath string) *cargoAPIApp {
	httpAddr := cfg.Cargo.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Cargo.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "cargo-api"
	}
	topic := cfg.Kafka.EventPublishedTopicName
	if topic == "" {
		topic = "event.published"
	}

	currentTTL := time.Duration(cfg.Cargo.CurrentStatusTTLSeconds) * time.Second
	if currentTTL <= 0 {
		currentTTL = 10 * time.Minute
	}
	countTTL := time.Duration(cfg.Cargo.UnreadCountTTLSeconds) * time.Second
	if countTTL <= 0 {
		countTTL = time.Minute
	}
	staleAfter := time.Duration(cfg.Cargo.HandleStaleSeconds) * time.Second
	sweepEvery := time.Duration(cfg.Cargo.HandleSweepSeconds) * time.Second
	gpsPoll := time.Duration(cfg.Cargo.GPSPollSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	rl := rediscache.NewRateLimiter(redisAddr)

	h := hub.New(staleAfter, sweepEvery)
	d := dispatch.New(h)

	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.Kafka.Host != "" {
		brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
		producer = kafka.NewProducer(brokers, topic)
		d = d.WithProducer(producer)
		consumer = kafka.NewConsumer(brokers, topic, consumerGroup)
	}

	bookings := lifecycle.New(st, rc, currentTTL, d)
	inbox := unread.New(st, rc, countTTL, d)

	f := feeder.New(st, fake.New(), d)
	if gpsPoll > 0 {
		f = f.WithInterval(gpsPoll)
	}

	api := eventsapi.New(h, d, bookings, inbox, st, eventsapi.Options{
		SwaggerPath:     swaggerPath,
		HandshakeLimit:  int64(cfg.Cargo.HandshakeRateLimit),
		HandshakeWindow: time.Duration(cfg.Cargo.HandshakeWindowSecs) * time.Second,
	}).WithLimiter(rl).WithFeeder(f)

	return &cargoAPIApp{
		opts: cargoAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		hub:        h,
		dispatcher: d,
		api:        api,
		feeder:     f,
		consumer:   consumer,
		producer:   producer,
		closeDB:    st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgbooking.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgbooking.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *cargoAPIApp) Close() {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}
