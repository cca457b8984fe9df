package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/config"
	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/events"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/redisbl"
	sqlitestore "github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/token"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/grpcapi"
	"github.com/BrandonDHaskell/gatehouse/internal/httpapi"
	"github.com/BrandonDHaskell/gatehouse/internal/logging"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
)

const devTenant = "estate-dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "gatehouse-server: %v\n", err)
		os.Exit(1)
	}
}

// backends holds the storage chosen by configuration.
type backends struct {
	store     store.Store
	eventLog  store.GateEventStore
	blacklist store.BlacklistStore
	closers   []func() error
}

func (b *backends) close(logger *zap.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Warn("close backend", zap.Error(err))
		}
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	// Events
	emitter, closeEmitter, err := buildEmitter(cfg, be.eventLog, m, logger)
	if err != nil {
		return err
	}
	defer closeEmitter()

	// Services
	exitCodec, err := token.NewCodec(cfg.Tokens.ExitPassSecret)
	if err != nil {
		return fmt.Errorf("exit pass codec: %w", err)
	}
	visitorCodec, err := token.NewCodec(cfg.Tokens.VisitorPassSecret)
	if err != nil {
		return fmt.Errorf("visitor pass codec: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	deps := service.Deps{
		Store:    be.store,
		Emitter:  emitter,
		EventLog: be.eventLog,
		Metrics:  m,
		Logger:   logger,
	}
	sessions := service.NewSessionService(deps, exitCodec, cfg.ExitPassTTL())
	approvals := service.NewApprovalService(deps, cfg.ApprovalTTL())
	visits := service.NewVisitService(deps, be.blacklist, visitorCodec, service.VisitOptions{Location: loc})

	sweeper := service.NewApprovalSweeper(approvals, cfg.SweepInterval(), logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// HTTP
	if cfg.IsDev() && cfg.Auth.JWTSecret == "" {
		logger.Warn("no auth.jwt_secret configured; trusting X-Tenant-ID / X-Actor-ID headers")
	}
	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      cfg.Server.HTTPAddr,
		Sessions:  sessions,
		Approvals: approvals,
		Visits:    visits,
		Auth:      httpapi.NewAuthenticator(cfg.Auth.JWTSecret),
		Metrics:   m,
	})

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// gRPC
	var grpcSrv *grpcapi.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpcapi.NewServer(grpcapi.Dependencies{
			Logger:    logger,
			Sessions:  sessions,
			Approvals: approvals,
			Visits:    visits,
			Metrics:   m,
		})
		go func() {
			logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("grpc server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*backends, error) {
	be := &backends{}

	switch cfg.Database.Driver {
	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cfg.Database.Path, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		be.closers = append(be.closers, conn.Close)

		if cfg.IsDev() && cfg.Database.SeedDev {
			if err := db.SeedDev(ctx, conn, db.SeedDevOptions{TenantID: devTenant}); err != nil {
				be.close(logger)
				return nil, fmt.Errorf("seed dev: %w", err)
			}
			logger.Info("seeded dev estate", zap.String("tenant_id", devTenant))
		}

		writer := db.NewWorker(conn)
		be.closers = append(be.closers, func() error { writer.Close(); return nil })

		be.store = sqlitestore.New(conn, writer)
		be.eventLog = sqlitestore.NewEventStore(conn, writer)
		if cfg.Blacklist.Backend == "sqlite" {
			be.blacklist = sqlitestore.NewBlacklist(conn, writer)
		}
		logger.Info("using sqlite store", zap.String("path", cfg.Database.Path))

	case "memory":
		mem := memory.New()
		if cfg.IsDev() && cfg.Database.SeedDev {
			seedMemory(mem)
		}
		be.store = mem
		be.eventLog = memory.NewEventStore()
		logger.Info("using in-memory store; state is lost on restart")
	}

	switch cfg.Blacklist.Backend {
	case "memory":
		bl := memory.NewBlacklist()
		if cfg.IsDev() && cfg.Database.SeedDev {
			bl.Add(types.BlacklistEntry{TenantID: devTenant, Kind: types.BlacklistPhone, Value: "+234-700-000", Active: true, Reason: "dev: known trespasser"})
		}
		be.blacklist = bl
	case "redis":
		rc := redisbl.NewClient(cfg.Blacklist.Redis.Addr, cfg.Blacklist.Redis.Password, cfg.Blacklist.Redis.DB)
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			be.close(logger)
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Blacklist.Redis.Addr, err)
		}
		be.closers = append(be.closers, rc.Close)
		be.blacklist = redisbl.New(rc, cfg.Blacklist.Redis.Prefix)
		logger.Info("using redis blacklist", zap.String("addr", cfg.Blacklist.Redis.Addr))
	}
	return be, nil
}

// buildEmitter sends events to the access log and, when configured, to the
// AMQP exchange.
func buildEmitter(cfg *config.Config, log store.GateEventStore, m *metrics.Metrics, logger *zap.Logger) (events.Emitter, func(), error) {
	sinks := []events.Emitter{events.NewStoreSink(log)}
	closeFn := func() {}

	if cfg.Events.AMQPURL != "" {
		pub, err := events.DialAMQP(cfg.Events.AMQPURL, cfg.Events.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, pub)
		closeFn = func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close amqp publisher", zap.Error(err))
			}
		}
		logger.Info("publishing gate events", zap.String("exchange", cfg.Events.AMQPExchange))
	}

	return events.NewInstrumented(events.NewFanout(sinks...), m), closeFn, nil
}

// seedMemory loads the same demo estate SeedDev writes to sqlite.
func seedMemory(s *memory.Store) {
	s.PutVehicle(types.Vehicle{
		ID: "veh-dev-1", TenantID: devTenant, ResidentID: "res-dev-1",
		Plate: "LAG234XY", TagCode: "TAG0001", Make: "Toyota", Model: "Corolla", Color: "Silver",
		Status: types.VehicleActive,
	})
	s.PutVisitor(types.Visitor{
		ID: "vis-dev-1", TenantID: devTenant, ResidentID: "res-dev-1",
		Name: "Ada Visitor", Phone: "+2348030000001", Status: types.VisitorExpected,
	})
}
