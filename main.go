package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proxy-auction/internal/archive"
	bidding "proxy-auction/internal/biddingService"
	"proxy-auction/internal/collaborators"
	"proxy-auction/internal/config"
	"proxy-auction/internal/notify"
	"proxy-auction/internal/repository"
	"proxy-auction/internal/repository/postgres"
	"proxy-auction/internal/repository/sqlite"
	"proxy-auction/internal/server"
	"proxy-auction/internal/server/ws"
	"proxy-auction/services/bidding/handler"
	"proxy-auction/utils"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

// Default collaborators satisfy the engine's interfaces.
var (
	_ bidding.CatalogStore            = (*collaborators.StaticCatalog)(nil)
	_ bidding.IdentityProvider        = collaborators.AllowAllIdentity{}
	_ bidding.PaymentAuthorizer       = (*collaborators.NoopPayments)(nil)
	_ bidding.Archiver                = (*archive.S3Archiver)(nil)
	_ bidding.Notifier                = (*notify.Dispatcher)(nil)
	_ notify.Sink                     = (*ws.Hub)(nil)
	_ handler.StandingStreamer        = (*ws.Hub)(nil)
	_ handler.BiddingServiceInterface = (*bidding.BiddingService)(nil)
	_ repository.AuctionStore         = (*sqlite.Repository)(nil)
	_ repository.AuctionStore         = (*postgres.AuctionStore)(nil)
)

func main() {
	configPath := flag.String("config", os.Getenv("AUCTION_CONFIG"), "path to a YAML, TOML or JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.Fatal("failed to load config", map[string]any{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		utils.Fatal("invalid config", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		utils.Fatal("invalid log level", map[string]any{"log_level": cfg.LogLevel, "error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Fatal("auction server stopped", map[string]any{"error": err.Error()})
	}
	utils.Info("auction server stopped", nil)
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	listings, err := cfg.CatalogListings()
	if err != nil {
		return err
	}
	increments, err := cfg.IncrementTable()
	if err != nil {
		return err
	}

	// the live stream always sees public events; the filter only applies to
	// the outward channels
	hub := ws.NewHub()
	outward := []notify.Sink{notify.LogSink{}}
	if cfg.Redis.Enabled {
		rdb, err := notify.NewRedisClient(ctx, notify.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		outward = append(outward, notify.NewRedisSink(rdb, cfg.Redis.ChannelPrefix, cfg.Redis.Stream))
	}
	sink := notify.NewFanout([]notify.Sink{hub, notify.NewFanout(outward, cfg.Notify.Events)}, nil)
	dispatcher := notify.NewDispatcher(store, sink, notify.DispatcherConfig{
		BatchSize:    cfg.Notify.BatchSize,
		PollInterval: cfg.Notify.PollInterval,
	}, nil)

	opts := []bidding.RegistryOption{bidding.WithNotifier(dispatcher)}
	if cfg.S3.Enabled {
		archiver, err := archive.NewS3Archiver(ctx, archive.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return err
		}
		opts = append(opts, bidding.WithArchiver(archiver))
	}

	registry := bidding.NewRegistry(store, collaborators.NewStaticCatalog(listings...), bidding.Settings{
		QuietPeriod:        cfg.Auction.QuietPeriod,
		RetireAfter:        cfg.Auction.RetireAfter,
		RequirePaymentHold: cfg.Auction.RequirePaymentHold,
		Increments:         increments,
	}, opts...)
	service := bidding.NewBiddingService(registry, collaborators.AllowAllIdentity{}, collaborators.NewNoopPayments())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.SetupRouter(service, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(dispatcher.Run(gctx)) })
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":     srv.Addr,
			"store":    cfg.Store.Driver,
			"listings": len(listings),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.Warn("http shutdown incomplete", map[string]any{"error": err.Error()})
		}
		return registry.Close(shutdownCtx)
	})
	return g.Wait()
}

// openStore connects the configured store and applies its migrations.
func openStore(ctx context.Context, cfg config.StoreConfig) (repository.AuctionStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
	default:
		return repository.NewMemoryRepo(), nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
