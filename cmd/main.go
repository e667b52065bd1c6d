package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventpass/cmd/buildCFG"
	"eventpass/internal/api/api"
	"eventpass/internal/auth"
	"eventpass/internal/checkin"
	rabbitReader "eventpass/internal/consumerWorker"
	"eventpass/internal/mailer"
	"eventpass/internal/metrics"
	"eventpass/internal/rabbit"
	"eventpass/internal/repo"
	"eventpass/internal/service"
	"eventpass/internal/ticket"
	"eventpass/internal/uploads"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "EVENTPASS"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	storageCfg, err := buildCFG.BuildStorageConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage config")
	}
	repository, closeRepo := openRepository(cfg, storageCfg, &log)
	defer closeRepo()

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, storageCfg.MigrationsPath)
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	authCfg, err := buildCFG.BuildAuthConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build auth config")
	}
	trl, closeTRL := openRevocationList(cfg, &log)
	defer closeTRL()
	authService, err := auth.NewService(authCfg, trl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth")
	}

	uploadsCfg, err := buildCFG.BuildUploadsConfig(cfg, serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build uploads config")
	}
	images, uploadsDir := openImageStore(uploadsCfg, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var notifier checkin.Notifier = checkin.NopNotifier{}
	var reader *rabbitReader.Reader

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		notifier = rabbit.NewNotifier(rmq)

		mailCfg, err := buildCFG.BuildMailConfig(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build mail config")
		}
		m, err := mailer.New(mailCfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize mailer")
		}
		reader = rabbitReader.NewReader(rmq, m, &log)
		reader.Start(workerCtx)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	desk := checkin.NewDesk(repository, ticket.NewIssuer(), notifier, m, &log)
	serviceInstance := service.NewService(repository, desk, authService, images, &log)

	app := api.NewRouters(&api.Routers{
		Service:    serviceInstance,
		Auth:       authService,
		CORSOrigin: serverCfg.CORSOrigin,
		UploadsDir: uploadsDir,
		Metrics:    prometheus.DefaultGatherer,
	})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}

	if storageCfg.RollbackOnShutdown {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Error().Msgf("failed to rollback migrations: %v", err)
		} else {
			log.Info().Msg("Migrations rolled back successfully")
		}
	}
	log.Info().Msg("Shutdown complete")
}

func openRepository(cfg *config.Config, sc buildCFG.StorageConfig, log *zerolog.Logger) (repo.Repository, func()) {
	switch sc.Driver {
	case buildCFG.DriverMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		return repo.NewMemoryRepository(), func() {}

	case buildCFG.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(sc.MongoURI))
		if err != nil {
			log.Fatal().Msgf("failed to connect to MongoDB: %v", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal().Msgf("MongoDB ping failed: %v", err)
		}
		r, err := repo.NewMongoRepository(ctx, client.Database(sc.MongoDatabase), log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
		log.Info().Msg("MongoDB connected successfully")
		return r, func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			_ = client.Disconnect(dctx)
		}
	}

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	r, err := repo.NewRepository(db, log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	return r, func() { _ = db.Master.Close() }
}

// openRevocationList prefers Redis so revoked sessions survive restarts and
// are shared between replicas.
func openRevocationList(cfg *config.Config, log *zerolog.Logger) (auth.RevocationList, func()) {
	rc, ok := buildCFG.BuildRedisConfig(cfg)
	if !ok {
		log.Warn().Msg("redis not configured, revoked tokens are kept in memory")
		return auth.NewMemoryTRL(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Msgf("Redis ping failed: %v", err)
	}
	log.Info().Str("addr", rc.Addr).Msg("Redis connected successfully")
	return auth.NewRedisTRL(client), func() { _ = client.Close() }
}

// openImageStore returns the store and, for local storage, the directory the
// router serves under /uploads.
func openImageStore(uc buildCFG.UploadsConfig, log *zerolog.Logger) (uploads.ImageStore, string) {
	if uc.Driver == buildCFG.UploadsS3 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := uploads.NewS3Store(ctx, uc.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize S3 image store")
		}
		log.Info().Str("bucket", uc.S3.Bucket).Msg("event images stored in S3")
		return store, ""
	}

	store, err := uploads.NewLocalStore(uc.Dir, uc.URLPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image directory")
	}
	return store, store.Dir()
}
