package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/VladKvetkin/ofinta/internal/callback"
	"github.com/VladKvetkin/ofinta/internal/config"
	"github.com/VladKvetkin/ofinta/internal/expirer"
	"github.com/VladKvetkin/ofinta/internal/handler"
	"github.com/VladKvetkin/ofinta/internal/lock"
	"github.com/VladKvetkin/ofinta/internal/logger"
	"github.com/VladKvetkin/ofinta/internal/mpesa"
	"github.com/VladKvetkin/ofinta/internal/notify"
	"github.com/VladKvetkin/ofinta/internal/orders"
	"github.com/VladKvetkin/ofinta/internal/server"
	"github.com/VladKvetkin/ofinta/internal/storage"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(start())
}

func start() int {
	config, err := config.NewConfig()
	if err != nil {
		zap.L().Info("error create config", zap.Error(err))
		return 1
	}

	if err := logger.Initialize(config.LogLevel); err != nil {
		zap.L().Info("error initialize logger", zap.Error(err))
		return 1
	}

	defer zap.L().Sync()

	db, err := sqlx.Connect("postgres", config.DatabaseURI)
	if err != nil {
		zap.L().Info("error failed to connect to db", zap.Error(err))
		return 1
	}

	defer db.Close()

	postgresStorage, err := storage.NewPostgresStorage(db)
	if err != nil {
		zap.L().Info("error failed to create postgres storage", zap.Error(err))
		return 1
	}

	locker, closeLocker, err := newLocker(config.RedisURL, config.LockTTL)
	if err != nil {
		zap.L().Info("error failed to create locker", zap.Error(err))
		return 1
	}

	defer closeLocker()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	dispatcher, err := newDispatcher(ctx, config.Notify, postgresStorage)
	if err != nil {
		zap.L().Info("error failed to create notification dispatcher", zap.Error(err))
		return 1
	}

	var (
		gateway   = mpesa.NewGateway(config.Mpesa, postgresStorage)
		processor = callback.NewProcessor(postgresStorage, locker, dispatcher, config.Mpesa.TestMode)
		service   = orders.NewService(postgresStorage, locker, gateway, dispatcher, processor)
		expirer   = expirer.NewExpirer(postgresStorage, gateway, config.Mpesa.ExpireInterval, config.Mpesa.RequestTimeout)
	)

	server := server.NewServer(
		config,
		handler.NewHandler(postgresStorage, service, processor, config.JWTSecret, config.PaymentLinkBaseURL),
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := server.Start(); err != nil {
			zap.L().Info("error starting server", zap.Error(err))
			return err
		}

		return nil
	})

	eg.Go(func() error {
		if err := dispatcher.Start(ctx); err != nil {
			zap.L().Info("error starting notification dispatcher", zap.Error(err))
			return err
		}

		return nil
	})

	eg.Go(func() error {
		if err := expirer.Start(ctx); err != nil {
			zap.L().Info("error starting expirer", zap.Error(err))
			return err
		}

		return nil
	})

	<-ctx.Done()

	eg.Go(func() error {
		if err := server.Stop(); err != nil {
			zap.L().Info("error stopping server", zap.Error(err))
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return 1
	}

	return 0
}

// newLocker uses Redis when it is configured and in-process locks otherwise.
func newLocker(redisURL string, ttl time.Duration) (lock.Locker, func(), error) {
	if redisURL == "" {
		zap.L().Warn("REDIS_URL is not set, order locks are local to this process")
		return lock.NewLocalLocker(), func() {}, nil
	}

	redisLocker, err := lock.NewRedisLocker(redisURL, ttl)
	if err != nil {
		return nil, nil, err
	}

	return redisLocker, func() {
		if err := redisLocker.Close(); err != nil {
			zap.L().Info("error close redis", zap.Error(err))
		}
	}, nil
}

func newDispatcher(ctx context.Context, cfg config.NotifyConfig, devices notify.Devices) (*notify.Dispatcher, error) {
	var (
		push  notify.PushSender  = notify.LogSender{}
		sms   notify.SMSSender   = notify.LogSender{}
		email notify.EmailSender = notify.LogSender{}
	)

	if cfg.FCMServerKey != "" {
		push = notify.NewFCMSender(cfg.FCMURL, cfg.FCMServerKey)
	}

	if cfg.SMSAPIKey != "" {
		sms = notify.NewAfricasTalkingSender(cfg.SMSURL, cfg.SMSUsername, cfg.SMSAPIKey)
	}

	if cfg.SESEnabled {
		sesSender, err := notify.NewSESSender(ctx, cfg.EmailFrom)
		if err != nil {
			return nil, err
		}

		email = sesSender
	}

	return notify.NewDispatcher(cfg.Workers, cfg.QueueSize, devices, push, sms, email), nil
}
