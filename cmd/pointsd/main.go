package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/internal/config"
	"github.com/MarkoPoloResearchLab/starpoints/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/starpoints/internal/httpapi"
	"github.com/MarkoPoloResearchLab/starpoints/internal/oplog"
	"github.com/MarkoPoloResearchLab/starpoints/internal/telegram"
	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	flagListenAddr        = "listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagBotToken          = "bot-token"
	flagAppURL            = "app-url"
	flagWebhookSecret     = "webhook-secret"
	flagAPIBaseURL        = "api-base-url"
	flagGatewayTimeout    = "gateway-timeout"
	flagAllowedOrigins    = "allowed-origins"
	flagNotifyWorkers     = "notify-workers"
	flagNotifyQueueSize   = "notify-queue-size"
	flagNotifySendTimeout = "notify-send-timeout"
	flagLogLevel          = "log-level"
	envPrefix             = "STARPOINTS"

	shutdownTimeout = 5 * time.Second
	drainTimeout    = 15 * time.Second
)

var allFlags = []string{
	flagListenAddr, flagGRPCListenAddr, flagDatabaseURL, flagStoreDriver, flagBotToken, flagAppURL,
	flagWebhookSecret, flagAPIBaseURL, flagGatewayTimeout, flagAllowedOrigins, flagNotifyWorkers,
	flagNotifyQueueSize, flagNotifySendTimeout, flagLogLevel,
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           "pointsd",
		Short:         "Telegram Stars points game server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}

	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC listen address (disabled when empty)")
	cmd.Flags().String(flagDatabaseURL, config.DatabaseMemory, "memory, sqlite://path or postgres:// connection string")
	cmd.Flags().String(flagStoreDriver, config.StoreDriverGorm, "postgres store implementation: gorm or pgx")
	cmd.Flags().String(flagBotToken, "", "Telegram bot token (required)")
	cmd.Flags().String(flagAppURL, "", "public web app URL opened by /start")
	cmd.Flags().String(flagWebhookSecret, "", "expected X-Telegram-Bot-Api-Secret-Token value")
	cmd.Flags().String(flagAPIBaseURL, telegram.DefaultAPIBaseURL, "Bot API base URL")
	cmd.Flags().Duration(flagGatewayTimeout, 10*time.Second, "Bot API request timeout")
	cmd.Flags().String(flagAllowedOrigins, "*", "comma-separated list of allowed CORS origins")
	cmd.Flags().Int(flagNotifyWorkers, 2, "notification sender goroutines")
	cmd.Flags().Int(flagNotifyQueueSize, 256, "queued notifications before new ones are dropped")
	cmd.Flags().Duration(flagNotifySendTimeout, 0, "per-notification send timeout (defaults to the gateway timeout)")
	cmd.Flags().String(flagLogLevel, "info", "debug, info, warn or error")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv(flagBotToken, envPrefix+"_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); err != nil {
		return err
	}
	if err := v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}
	for _, flagName := range allFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreDriver = strings.TrimSpace(v.GetString(flagStoreDriver))
	cfg.BotToken = strings.TrimSpace(v.GetString(flagBotToken))
	cfg.AppURL = strings.TrimSpace(v.GetString(flagAppURL))
	cfg.WebhookSecret = v.GetString(flagWebhookSecret)
	cfg.APIBaseURL = strings.TrimSpace(v.GetString(flagAPIBaseURL))
	cfg.GatewayTimeout = v.GetDuration(flagGatewayTimeout)
	cfg.AllowedOrigins = config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.NotifyWorkers = v.GetInt(flagNotifyWorkers)
	cfg.NotifyQueueSize = v.GetInt(flagNotifyQueueSize)
	cfg.NotifySendTimeout = v.GetDuration(flagNotifySendTimeout)
	cfg.LogLevel = strings.TrimSpace(v.GetString(flagLogLevel))

	return cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(parsed)
	return zapConfig.Build()
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer closeStore()

	botClient, err := telegram.NewClient(telegram.ClientConfig{
		Token:   cfg.BotToken,
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.GatewayTimeout,
	}, logger.Named("telegram"))
	if err != nil {
		return fmt.Errorf("telegram client init: %w", err)
	}

	operationLogger := points.WithOperationLogger(oplog.New(logger))
	dispatcher, err := points.NewNotificationDispatcher(botClient, points.DispatcherConfig{
		Workers:     cfg.NotifyWorkers,
		QueueSize:   cfg.NotifyQueueSize,
		SendTimeout: cfg.NotifySendTimeout,
	}, operationLogger)
	if err != nil {
		return fmt.Errorf("notification dispatcher init: %w", err)
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if drainErr := dispatcher.Close(drainCtx); drainErr != nil {
			logger.Warn("notification drain incomplete", zap.Error(drainErr))
		}
	}()

	clock := func() time.Time { return time.Now().UTC() }
	claimService, err := points.NewClaimService(store, dispatcher, clock, operationLogger)
	if err != nil {
		return fmt.Errorf("claim service init: %w", err)
	}
	invoiceService, err := points.NewInvoiceService(store, botClient, clock, operationLogger)
	if err != nil {
		return fmt.Errorf("invoice service init: %w", err)
	}
	processor, err := points.NewPaymentProcessor(store, botClient, dispatcher, clock,
		operationLogger,
		points.WithInvoiceLookup(store),
		points.WithAppURL(cfg.AppURL),
	)
	if err != nil {
		return fmt.Errorf("payment processor init: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		WebhookSecret:  cfg.WebhookSecret,
	}, httpapi.Dependencies{
		Claims:    claimService,
		Invoices:  invoiceService,
		Processor: processor,
		Decode:    telegram.DecodeUpdate,
		Health:    store,
		Logger:    logger.Named("http"),
	})
	if err != nil {
		return fmt.Errorf("http router init: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if cfg.GRPCListenAddr != "" {
		pointsServer, err := grpcserver.NewPointsServiceServer(claimService, invoiceService, store)
		if err != nil {
			return fmt.Errorf("grpc server init: %w", err)
		}
		grpcListener, err = net.Listen("tcp", cfg.GRPCListenAddr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(logger.Named("grpc"))))
		grpcserver.Register(grpcServer, pointsServer)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server starting", zap.String("listen_addr", cfg.ListenAddr))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})
	if grpcServer != nil {
		group.Go(func() error {
			logger.Info("gRPC server starting", zap.String("listen_addr", cfg.GRPCListenAddr))
			if serveErr := grpcServer.Serve(grpcListener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
				return serveErr
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("http shutdown error", zap.Error(shutdownErr))
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return nil
	})
	return group.Wait()
}
