// cargo-watch подключается к каналу событий как обычный клиент: печатает
// входящие кадры, инвалидирует локальный кэш и дёргает звуковую цепочку.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/OrionPixel/orion-pixel-cargo-sub003/config"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/cache/memcache"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/client"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/client/alert"
	"github.com/OrionPixel/orion-pixel-cargo-sub003/internal/events"
)

func main() {
	userID, err := strconv.ParseUint(os.Getenv("userId"), 10, 64)
	if err != nil || userID == 0 {
		panic("userId env var is required")
	}
	role := os.Getenv("role")

	host := ""
	reconnect := time.Duration(0)
	if cfgPath := os.Getenv("configPath"); cfgPath != "" {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
		}
		host = cfg.Cargo.EventsHost
		reconnect = time.Duration(cfg.Cargo.ReconnectDelaySecs) * time.Second
	}

	sub := client.NewSubscription(client.Config{
		Host:           host, // пустой откатится на client.DefaultHost
		UserID:         userID,
		Role:           role,
		ReconnectDelay: reconnect,
	}, client.NewWSDialer())

	store := memcache.New()
	arbiter := alert.New(store, alert.DefaultChain()...)
	if os.Getenv("unmute") == "1" {
		arbiter.Unmute()
	}

	apiHost := host
	if apiHost == "" {
		apiHost = client.DefaultHost
	}
	counts := newRESTCounts("http://" + apiHost)
	client.NewReceiver(sub, store, counts, arbiter)

	for _, t := range []events.Type{
		events.TypeConnected, events.TypeNotification, events.TypeMessage,
		events.TypeBooking, events.TypeVehicle, events.TypeGPS, events.TypeDashboard,
	} {
		t := t
		sub.On(t, func(ev events.Event) {
			slog.Info("event", "type", t, "action", ev.Action, "userId", ev.UserID, "data", string(ev.Data))
		})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sub.Connect(ctx); err != nil {
		panic(err)
	}
	slog.Info("watching events", "userId", userID, "role", role)

	<-ctx.Done()
	sub.Disconnect()
}
