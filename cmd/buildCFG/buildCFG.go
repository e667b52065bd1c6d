package buildCFG

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"eventpass/internal/auth"
	"eventpass/internal/mailer"
	"eventpass/internal/uploads"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"

	UploadsLocal = "local"
	UploadsS3    = "s3"
)

type ServerConfig struct {
	Port         string
	CORSOrigin   string
	APIBaseURL   string
	ImageBaseURL string
}

type StorageConfig struct {
	Driver             string
	MigrationsPath     string
	RollbackOnShutdown bool
	MongoURI           string
	MongoDatabase      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

type UploadsConfig struct {
	Driver    string
	Dir       string
	URLPrefix string
	S3        uploads.S3Config
}

type ScannerConfig struct {
	APIBaseURL     string
	SnapshotURL    string
	Interval       time.Duration
	CameraUsername string
	CameraPassword string
	AdminUsername  string
	AdminPassword  string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msgf("server.port not set, using %s", port)
	}
	return ServerConfig{
		Port:         port,
		CORSOrigin:   cfg.GetString("server.cors_origin"),
		APIBaseURL:   cfg.GetString("server.api_base_url"),
		ImageBaseURL: strings.TrimRight(cfg.GetString("server.image_base_url"), "/"),
	}
}

func BuildStorageConfig(cfg *config.Config, log *zerolog.Logger) (StorageConfig, error) {
	sc := StorageConfig{
		Driver:             strings.ToLower(cfg.GetString("storage.driver")),
		MigrationsPath:     cfg.GetString("postgres.migrations_path"),
		RollbackOnShutdown: cfg.GetBool("postgres.rollback_on_shutdown"),
		MongoURI:           cfg.GetString("mongo.uri"),
		MongoDatabase:      cfg.GetString("mongo.database"),
	}
	if sc.Driver == "" {
		sc.Driver = DriverPostgres
	}
	if sc.MigrationsPath == "" {
		sc.MigrationsPath = "migrations/postgres"
	}

	switch sc.Driver {
	case DriverPostgres, DriverMemory:
	case DriverMongo:
		if sc.MongoURI == "" || sc.MongoDatabase == "" {
			return sc, fmt.Errorf("mongo.uri and mongo.database are required for the mongo driver")
		}
	default:
		return sc, fmt.Errorf("unknown storage.driver %q", sc.Driver)
	}
	log.Info().Str("driver", sc.Driver).Msg("storage configured")
	return sc, nil
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("postgres.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("postgres.master_dsn is required")
	}
	slaveDSNs := cfg.GetStringSlice("postgres.slave_dsns")

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("postgres.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("postgres.max_idle_conns"),
		ConnMaxLifetime: cfg.GetDuration("postgres.conn_max_lifetime"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime == 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	log.Info().Int("slaves", len(slaveDSNs)).Int("max_open_conns", opts.MaxOpenConns).Msg("postgres configured")
	return masterDSN, slaveDSNs, opts, nil
}

func BuildAuthConfig(cfg *config.Config, log *zerolog.Logger) (auth.Config, error) {
	ac := auth.Config{
		Secret:            cfg.GetString("auth.jwt_secret"),
		Issuer:            cfg.GetString("auth.issuer"),
		TTL:               cfg.GetDuration("auth.token_ttl"),
		AdminUsername:     cfg.GetString("auth.admin_username"),
		AdminPasswordHash: cfg.GetString("auth.admin_password_hash"),
	}
	if ac.Secret == "" {
		return ac, fmt.Errorf("auth.jwt_secret is required")
	}
	if ac.AdminUsername == "" || ac.AdminPasswordHash == "" {
		return ac, fmt.Errorf("auth.admin_username and auth.admin_password_hash are required")
	}
	if ac.TTL == 0 {
		ac.TTL = 12 * time.Hour
		log.Warn().Msgf("auth.token_ttl not set, using %s", ac.TTL)
	}
	if ac.Issuer == "" {
		ac.Issuer = "eventpass"
	}
	return ac, nil
}

// BuildRedisConfig returns ok=false when Redis is not configured.
func BuildRedisConfig(cfg *config.Config) (RedisConfig, bool) {
	rc := RedisConfig{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	}
	return rc, rc.Addr != ""
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbit.enabled"),
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("rabbit disabled, ticket e-mails will not be sent")
		return rc, nil
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required when rabbit is enabled")
	}
	if rc.Exchange == "" {
		rc.Exchange = "eventpass"
	}
	if rc.Queue == "" {
		rc.Queue = "eventpass.notifications"
	}
	return rc, nil
}

func BuildMailConfig(cfg *config.Config) (mailer.Config, error) {
	mc := mailer.Config{
		Host:     cfg.GetString("mail.host"),
		Port:     cfg.GetInt("mail.port"),
		Username: cfg.GetString("mail.username"),
		Password: cfg.GetString("mail.password"),
		From:     cfg.GetString("mail.from"),

		TLSPolicy: cfg.GetString("mail.tls_policy"),
	}
	if mc.Host == "" || mc.From == "" {
		return mc, fmt.Errorf("mail.host and mail.from are required")
	}
	if _, err := mailer.ParseTLSPolicy(mc.TLSPolicy); err != nil {
		return mc, fmt.Errorf("mail.tls_policy: %w", err)
	}
	return mc, nil
}

func BuildUploadsConfig(cfg *config.Config, server ServerConfig) (UploadsConfig, error) {
	uc := UploadsConfig{
		Driver: strings.ToLower(cfg.GetString("uploads.driver")),
		Dir:    cfg.GetString("uploads.dir"),
		S3: uploads.S3Config{
			Bucket:    cfg.GetString("uploads.s3.bucket"),
			Region:    cfg.GetString("uploads.s3.region"),
			Prefix:    cfg.GetString("uploads.s3.prefix"),
			PublicURL: cfg.GetString("uploads.s3.public_url"),
		},
	}
	if uc.Driver == "" {
		uc.Driver = UploadsLocal
	}
	if uc.Dir == "" {
		uc.Dir = "uploads"
	}
	uc.URLPrefix = server.ImageBaseURL + "/uploads"

	switch uc.Driver {
	case UploadsLocal:
	case UploadsS3:
		if uc.S3.Bucket == "" {
			return uc, fmt.Errorf("uploads.s3.bucket is required for the s3 driver")
		}
	default:
		return uc, fmt.Errorf("unknown uploads.driver %q", uc.Driver)
	}
	return uc, nil
}

func BuildScannerConfig(cfg *config.Config) (ScannerConfig, error) {
	sc := ScannerConfig{
		APIBaseURL:     cfg.GetString("scanner.api_base_url"),
		SnapshotURL:    cfg.GetString("scanner.snapshot_url"),
		Interval:       cfg.GetDuration("scanner.interval"),
		CameraUsername: cfg.GetString("scanner.camera_username"),
		CameraPassword: cfg.GetString("scanner.camera_password"),
		AdminUsername:  cfg.GetString("scanner.admin_username"),
		AdminPassword:  cfg.GetString("scanner.admin_password"),
	}
	if sc.APIBaseURL == "" {
		sc.APIBaseURL = cfg.GetString("server.api_base_url")
	}
	if sc.APIBaseURL == "" || sc.SnapshotURL == "" {
		return sc, fmt.Errorf("scanner.api_base_url and scanner.snapshot_url are required")
	}
	if sc.Interval == 0 {
		sc.Interval = 300 * time.Millisecond
	}
	return sc, nil
}
