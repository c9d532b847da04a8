package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"
)

type cargoAPIOpts struct {
	httpAddr      string
	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

func (a *cargoAPIApp) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.opts.httpAddr)
	if err != nil {
		return err
	}
	if a.opts.onListen != nil {
		a.opts.onListen(lis.Addr().String())
	}

	go a.hub.Run(ctx)
	go a.dispatcher.Run(ctx)
	go func() {
		if err := a.feeder.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("gps feeder stopped", "err", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", a.opts.topic, "group", a.opts.consumerGroup)
			_ = a.consumer.Consume(ctx, a.dispatcher.HandleBrokerMessage)
		}()
	}

	srv := &http.Server{Handler: a.api.Routes()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
