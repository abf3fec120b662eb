package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"mototumen.org/internal/admin"
	"mototumen.org/internal/auth"
	"mototumen.org/internal/authz"
	"mototumen.org/internal/config"
	"mototumen.org/internal/directory"
	"mototumen.org/internal/events"
	"mototumen.org/internal/httpapi"
	"mototumen.org/internal/migrate"
	"mototumen.org/internal/obs"
	"mototumen.org/internal/store/memory"
	"mototumen.org/internal/store/pg"
	"mototumen.org/migrations"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type stores interface {
	admin.StateStore
	admin.RequestStore
	admin.UserStore
}

func main() {
	log := obs.Logger()
	if err := run(); err != nil {
		log.Fatal("api stopped", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		return err
	}
	log := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog := authz.DefaultCatalog()
	if cfg.CatalogPath != "" {
		if catalog, err = authz.LoadCatalog(cfg.CatalogPath); err != nil {
			return err
		}
	}

	var (
		st    stores
		probe httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		pgs, err := pg.Open(cfg.PGDSN, pg.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
		})
		if err != nil {
			return err
		}
		defer pgs.Close()
		if cfg.MigrateOnStart {
			mctx, cancel := context.WithTimeout(ctx, time.Minute)
			err := migrate.NewManager(pgs.DB(), migrations.Schema(), migrations.Seeds()).Up(mctx)
			cancel()
			if err != nil {
				return err
			}
		}
		st, probe = pgs, httpapi.ReadyProbe{DB: pgs.DB()}
	} else {
		mem := memory.New()
		if cfg.BootstrapCEOID != "" {
			mem.PutUser(directory.User{ID: cfg.BootstrapCEOID, Name: "ceo", Roles: []authz.RoleID{authz.RoleCEO}})
		}
		st = mem
		log.Warn("no database configured, using in-memory store")
	}

	hub := events.NewHub()
	var publisher events.Publisher = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := events.Relay(ctx, client, cfg.EventsChannel, hub); err != nil {
			return err
		}
		// The relay feeds the local hub, so publish only to redis.
		publisher = events.NewRedisPublisher(client, cfg.EventsChannel)
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	svc := admin.NewService(admin.StaticCatalog{Catalog: catalog}, st, st, st,
		admin.WithPublisher(publisher),
		admin.WithAttribution(admin.Attribution{
			UseActor:      cfg.GranterAttribution == config.AttributionActor,
			PlaceholderID: cfg.PlaceholderGranterID,
		}),
	)

	api := httpapi.New(svc, signer, hub, probe, httpapi.Options{
		Version:        version,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		CORSOrigins:    cfg.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewGRPCServer(probe)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go health.Watch(ctx, 10*time.Second)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
