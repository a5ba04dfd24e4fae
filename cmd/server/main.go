package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openvenue/seatfloor/config"
	"github.com/openvenue/seatfloor/internal/bootstrap"
	kafkaDelivery "github.com/openvenue/seatfloor/internal/delivery/kafka"
	"github.com/openvenue/seatfloor/internal/fanout"
	infraRedis "github.com/openvenue/seatfloor/internal/infra/redis"
	"github.com/openvenue/seatfloor/internal/registry"
	"github.com/openvenue/seatfloor/internal/relay"
	"github.com/openvenue/seatfloor/internal/reservation"
	"github.com/openvenue/seatfloor/internal/room"
	"github.com/openvenue/seatfloor/internal/store"
	"github.com/openvenue/seatfloor/internal/ws"
	pkgKafka "github.com/openvenue/seatfloor/pkg/kafka"
	pkgLog "github.com/openvenue/seatfloor/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	storeCli := store.NewClient(cfg.Store, l)
	fan := fanout.New()

	// Lifecycle event producer (optional)
	var prod kafkaDelivery.Producer
	if cfg.Kafka.Enabled {
		syncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = kafkaDelivery.NewProducer(syncProd, l)
		defer prod.Close()
	}

	reg := registry.New(l)
	rooms := room.NewDirectory(cfg.Room.DefaultCapacity, fan, storeCli, prod, l)

	// Seat-status relay across instances (optional)
	var resvFan reservation.Broadcaster = fan
	var rly *relay.Relay
	if cfg.Redis.Enabled {
		redisCli, err := infraRedis.Connect(ctx, cfg.Redis)
		if err != nil {
			l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
		}
		defer infraRedis.Disconnect(redisCli)

		rly = relay.New(redisCli, fan, cfg.Redis.Channel, l)
		resvFan = relay.WrapFanout(fan, rly)
	}

	resv := reservation.NewManager(
		reg,
		storeCli,
		resvFan,
		rooms,
		prod,
		cfg.Reservation.TTL,
		cfg.Reservation.ReleaseRetryInterval,
		l,
	)

	// Seed rooms from the store; failure falls back to lazy creation.
	if err := bootstrap.Sync(ctx, storeCli, rooms, l); err != nil {
		l.Warnf(ctx, "Bootstrap sync failed, continuing with lazy room creation: %v", err)
	}

	wsSrv := ws.NewServer(reg, rooms, resv, fan, l)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsSrv)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "seatfloor",
		})
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     mux,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Infof(gctx, "Server listening on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if rly != nil {
		g.Go(func() error {
			if err := rly.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		l.Info(gctx, "Server shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Fatalf(ctx, "Server error: %v", err)
	}

	l.Info(ctx, "Server exited")
}
