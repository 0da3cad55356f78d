package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kass/go-eco-route/internal/cache"
	"github.com/kass/go-eco-route/internal/events"
	"github.com/kass/go-eco-route/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the routing API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Bool("cache", true, "Cache route responses")
	cmd.Flags().Bool("kafka", false, "Publish routes.computed events to Kafka")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	eng, err := a.buildEngine()
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithLogger(a.logger.Named("http")),
		server.WithClock(a.clock),
		server.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
	}

	if c := a.cfg.Cache; c.Enabled {
		opts = append(opts, server.WithCache(
			cache.New[*server.RoutingResponse](c.TTL, c.LongTTL, c.Horizon, c.CleanupInterval),
		))
	}

	if a.roads != nil {
		opts = append(opts, server.WithRoadHealth(a.roads))
	}

	if k := a.cfg.Kafka; k.Enabled {
		pub := events.NewKafkaPublisher(k.Brokers, k.Topic, a.logger.Named("events"))
		defer func() {
			if err := pub.Close(); err != nil {
				a.logger.Error("failed to close event publisher", zap.Error(err))
			}
		}()
		opts = append(opts, server.WithPublisher(pub))
		a.logger.Info("Publishing route events",
			zap.Strings("brokers", k.Brokers),
			zap.String("topic", k.Topic),
		)
	}

	srv := server.New(eng, opts...)
	s := a.cfg.Server
	return srv.Run(ctx, s.Addr, s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout)
}
