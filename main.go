package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/spooky-finn/go-lighter-cpty/config"
	"github.com/spooky-finn/go-lighter-cpty/domain"
	"github.com/spooky-finn/go-lighter-cpty/infrastructure/logging"
	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
	redisclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/redis"
	"github.com/spooky-finn/go-lighter-cpty/provider/lighter"
	"github.com/spooky-finn/go-lighter-cpty/rpc"
	"github.com/spooky-finn/go-lighter-cpty/usecase"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(conf.Logging.Level, conf.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, conf); err != nil {
		logger.Fatal("connector stopped", zap.Error(err))
	}
	logger.Info("connector stopped")
}

func run(ctx context.Context, logger *zap.Logger, conf *config.Config) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if conf.Server.MetricsAddr != "" {
		metrics := promclient.NewPromClientServer(conf.Server.MetricsAddr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer metrics.Close()
	}

	syncAPI := lighter.NewSyncAPI(logger, lighter.SyncAPIConfig{
		BaseURL:         conf.Lighter.URL,
		WeightPerMinute: conf.Lighter.WeightPerMinute,
	})
	registry := domain.NewMarketRegistry(logger, domain.RegistryConfig{FetchAttempts: 3})
	if err := registry.Load(ctx, syncAPI, lighter.FallbackMarkets()); err != nil {
		return errors.Wrap(err, "load markets")
	}

	hubs := usecase.NewEventHubs(logger)
	sinks := []domain.BookSink{hubs}
	if conf.Redis.Addr != "" {
		redisConf := redisclient.Config{Addr: conf.Redis.Addr, DB: conf.Redis.DB, TTL: conf.Redis.TTL}
		client := redisclient.NewClient(redisConf)
		defer client.Close()
		sink := redisclient.NewBookSink(logger, client, redisConf)
		if err := sink.Ping(ctx); err != nil {
			// books are still served over rpc, redis writes retry on every publish
			logger.Warn("redis unreachable", zap.String("addr", conf.Redis.Addr), zap.Error(err))
		}
		sinks = append(sinks, sink)
	}

	publisher := usecase.NewBookPublisher(logger, usecase.BookPublisherConfig{
		Interval: conf.Books.PublishInterval,
		MaxBatch: conf.Books.MaxBatch,
		Depth:    conf.Books.Depth,
	}, sinks...)
	validator, err := domain.NewDepthUpdateValidator(domain.SequencePolicy(conf.Books.SequencePolicy))
	if err != nil {
		return err
	}
	books := usecase.NewBookEngine(logger, registry, validator, publisher)

	submitter, auth := newSubmitter(logger, conf, syncAPI)
	orders := usecase.NewOrderLifecycleEngine(logger, registry, submitter, hubs, hubs, usecase.OrderEngineConfig{
		SubmitTimeout:     conf.Orders.SubmitTimeout,
		StaleAfter:        conf.Orders.StaleAfter,
		ReconcileInterval: conf.Orders.ReconcileInterval,
		Retention:         conf.Orders.Retention,
		FallbackWindow:    conf.Orders.FallbackWindow,
	})

	dispatcher := lighter.NewDispatcher(logger, books, orders, lighter.DispatcherConfig{
		AccountIndex: conf.Lighter.AccountIndex,
		Auth:         auth,
	})
	books.SetResyncRequester(dispatcher)

	connector := usecase.NewConnector(logger, registry, books, orders, hubs)
	if err := connector.TrackMarkets(conf.Lighter.Markets, dispatcher); err != nil {
		return errors.Wrap(err, "track markets")
	}
	if conf.Lighter.AccountIndex >= 0 {
		if err := dispatcher.SubscribeAccount(); err != nil {
			return errors.Wrap(err, "subscribe account")
		}
	}

	stream := lighter.NewStreamClient(logger, lighter.StreamConfig{URL: conf.Lighter.WSURL}, dispatcher)

	srv := rpc.NewServer(logger, connector, &rpc.ValidationServiceConfig{
		AvailableVenues: []string{domain.VenueName},
	})
	grpcServer, health := rpc.NewGRPCServer(srv)
	lis, err := net.Listen("tcp", conf.ServerAddr())
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := stream.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stream client", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		orders.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		watchHealth(ctx, stream, health)
	}()

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()
	logger.Info("connector started",
		zap.String("addr", lis.Addr().String()),
		zap.String("submission_mode", conf.SubmissionMode),
		zap.String("sequence_policy", conf.Books.SequencePolicy),
		zap.Int("markets", len(registry.Markets())),
	)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return errors.Wrap(err, "grpc server")
	}

	health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		grpcServer.Stop()
	}
	return nil
}

// newSubmitter returns the order submitter for the configured mode and the
// auth token source for private stream channels.
func newSubmitter(logger *zap.Logger, conf *config.Config, syncAPI *lighter.SyncAPI) (domain.OrderSubmitter, lighter.AuthTokenSource) {
	if conf.SubmissionMode != config.SubmissionMode_Live {
		logger.Warn("paper submission mode, orders never reach the exchange")
		return lighter.NewPaperClient(logger), nil
	}

	signer := lighter.NewRemoteSigner(lighter.RemoteSignerConfig{
		URL:          conf.Signer.URL,
		AccountIndex: conf.Lighter.AccountIndex,
		APIKeyIndex:  conf.Lighter.APIKeyIndex,
		Timeout:      conf.Signer.Timeout,
	})
	client := lighter.NewTxClient(logger, syncAPI, signer, lighter.TxClientConfig{
		AccountIndex: conf.Lighter.AccountIndex,
		APIKeyIndex:  conf.Lighter.APIKeyIndex,
	})
	return client, client.AuthToken
}

// watchHealth reports SERVING while the market data stream is connected.
func watchHealth(ctx context.Context, stream *lighter.StreamClient, health interface {
	SetServingStatus(string, healthpb.HealthCheckResponse_ServingStatus)
}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if stream.IsConnected() {
			status = healthpb.HealthCheckResponse_SERVING
		}
		health.SetServingStatus(rpc.ServiceName, status)
		health.SetServingStatus("", status)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
