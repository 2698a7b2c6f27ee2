package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/SevaSetuLabs/booking/internal/directory"
	"github.com/SevaSetuLabs/booking/internal/httpserver"
	"github.com/SevaSetuLabs/booking/internal/monitoring"
	"github.com/SevaSetuLabs/booking/internal/notify"
	"github.com/SevaSetuLabs/booking/internal/oplog"
	"github.com/SevaSetuLabs/booking/internal/store/gormstore"
	"github.com/SevaSetuLabs/booking/internal/wallet"
	"github.com/SevaSetuLabs/booking/internal/wallet/pgwallet"
	"github.com/SevaSetuLabs/booking/pkg/booking"
	"github.com/SevaSetuLabs/booking/pkg/pricing"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagFestivalCalendar   = "festival-calendar"
	flagPubNubPublishKey   = "pubnub-publish-key"
	flagPubNubSubscribeKey = "pubnub-subscribe-key"

	configKeyDatabaseURL        = "database_url"
	configKeyListenAddr         = "listen_addr"
	configKeyAllowedOrigins     = "allowed_origins"
	configKeyFestivalCalendar   = "festival_calendar"
	configKeyPubNubPublishKey   = "pubnub_publish_key"
	configKeyPubNubSubscribeKey = "pubnub_subscribe_key"

	defaultDatabaseURL = "sqlite:///tmp/booking.db"
	defaultListenAddr  = ":8080"
)

type runtimeConfig struct {
	DatabaseURL        string
	ListenAddr         string
	AllowedOrigins     []string
	FestivalCalendar   string
	PubNubPublishKey   string
	PubNubSubscribeKey string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "bookingd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Booking lifecycle HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL connection string or sqlite path")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().StringSlice(flagAllowedOrigins, []string{"*"}, "Allowed CORS origins")
	cmd.Flags().String(flagFestivalCalendar, "", "Path to a JSON festival calendar keyed by date")
	cmd.Flags().String(flagPubNubPublishKey, "", "PubNub publish key (log-only notifier when empty)")
	cmd.Flags().String(flagPubNubSubscribeKey, "", "PubNub subscribe key")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:        "DATABASE_URL",
		configKeyListenAddr:         "HTTP_LISTEN_ADDR",
		configKeyAllowedOrigins:     "ALLOWED_ORIGINS",
		configKeyFestivalCalendar:   "FESTIVAL_CALENDAR",
		configKeyPubNubPublishKey:   "PUBNUB_PUBLISH_KEY",
		configKeyPubNubSubscribeKey: "PUBNUB_SUBSCRIBE_KEY",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL:        flagDatabaseURL,
		configKeyListenAddr:         flagListenAddr,
		configKeyAllowedOrigins:     flagAllowedOrigins,
		configKeyFestivalCalendar:   flagFestivalCalendar,
		configKeyPubNubPublishKey:   flagPubNubPublishKey,
		configKeyPubNubSubscribeKey: flagPubNubSubscribeKey,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyAllowedOrigins)
	cfg.FestivalCalendar = viper.GetString(configKeyFestivalCalendar)
	cfg.PubNubPublishKey = viper.GetString(configKeyPubNubPublishKey)
	cfg.PubNubSubscribeKey = viper.GetString(configKeyPubNubSubscribeKey)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	providerDirectory := directory.New(gormDB)

	var walletLedger interface {
		Credit(ctx context.Context, userID string, amountCents int64, reference string) error
		Debit(ctx context.Context, userID string, amountCents int64, reference string) error
		Balance(ctx context.Context, userID string) (int64, error)
	}
	if driver == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("pgx pool: %w", err)
		}
		defer pool.Close()
		walletLedger = pgwallet.New(pool)
	} else {
		walletLedger = wallet.New(gormDB)
	}

	notifier := buildNotifier(cfg, logger)

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)
	operationLogger := oplog.Tee{oplog.NewZapLogger(logger), metrics}

	clock := func() int64 { return time.Now().UTC().Unix() }
	bookingService, err := booking.NewService(store, walletLedger, notifier, providerDirectory, clock,
		booking.WithOperationLogger(operationLogger))
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}

	calendar, err := loadFestivalCalendar(cfg.FestivalCalendar)
	if err != nil {
		return fmt.Errorf("festival calendar: %w", err)
	}
	pricingEngine := pricing.NewEngine(calendar, pricing.DefaultConfig())

	go bookingService.RunExpirySweeper(ctx)
	go bookingService.RunNoShowSweeper(ctx)
	go bookingService.RunRefundSweeper(ctx)

	server := httpserver.New(httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger, bookingService, pricingEngine, walletLedger,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return server.Run(ctx)
}

func buildNotifier(cfg *runtimeConfig, logger *zap.Logger) booking.Notifier {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		return notify.NewLogNotifier(logger)
	}
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("bookingd"))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	return notify.NewPubNubNotifier(pubnub.NewPubNub(pnConfig), logger)
}

func loadFestivalCalendar(path string) (pricing.FestivalCalendar, error) {
	if path == "" {
		return pricing.EmptyCalendar(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var calendar pricing.StaticCalendar
	if err := json.Unmarshal(raw, &calendar); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return calendar, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var (
		db  *gorm.DB
		cfg *gorm.Config
	)
	cfg = &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "booking.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	models := gormstore.Models()
	models = append(models, wallet.Models()...)
	models = append(models, directory.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
