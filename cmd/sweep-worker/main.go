package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sejinoh/pickupz-backend/internal/courier"
	"github.com/sejinoh/pickupz-backend/internal/cron"
	"github.com/sejinoh/pickupz-backend/internal/delivery"
	"github.com/sejinoh/pickupz-backend/internal/payments"
	"github.com/sejinoh/pickupz-backend/internal/points"
	"github.com/sejinoh/pickupz-backend/internal/reservations"
	"github.com/sejinoh/pickupz-backend/internal/users"
	"github.com/sejinoh/pickupz-backend/pkg/config"
	"github.com/sejinoh/pickupz-backend/pkg/db"
	"github.com/sejinoh/pickupz-backend/pkg/displaycode"
	"github.com/sejinoh/pickupz-backend/pkg/logger"
	"github.com/sejinoh/pickupz-backend/pkg/metrics"
	"github.com/sejinoh/pickupz-backend/pkg/migrate"
	"github.com/sejinoh/pickupz-backend/pkg/redis"
	"github.com/sejinoh/pickupz-backend/pkg/square"
)

const lockName = "sweep-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweep-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "sweep-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}
	gateway := square.NewGateway(squareClient)

	registry, err := buildRegistry(cfg, dbClient, gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build sweep jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName, 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewSweepJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweep.Interval,
		Retry: cron.RetryPolicy{
			MaxAttempts: cfg.Sweep.LockRetryMaxAttempts,
			BaseDelay:   cfg.Sweep.LockRetryBaseDelay,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting sweep worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweep worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweep worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, dbClient *db.Client, gateway payments.Gateway, logg *logger.Logger) (*cron.Registry, error) {
	conn := dbClient.DB()

	userRepo := users.NewRepository(conn)
	pointSvc, err := points.NewService(points.NewRepository(conn), userRepo, dbClient, logg)
	if err != nil {
		return nil, err
	}

	reservationCodes, err := displaycode.New("R", time.Now)
	if err != nil {
		return nil, err
	}
	reservationSvc, err := reservations.NewService(reservations.NewRepository(conn), userRepo, dbClient, reservationCodes, logg, time.Now)
	if err != nil {
		return nil, err
	}

	deliveryCodes, err := displaycode.New("D", time.Now)
	if err != nil {
		return nil, err
	}
	deliverySvc, err := delivery.NewService(delivery.NewRepository(conn), reservationSvc, pointSvc, userRepo, gateway, dbClient, deliveryCodes, logg, time.Now)
	if err != nil {
		return nil, err
	}

	courierCodes, err := displaycode.New("C", time.Now)
	if err != nil {
		return nil, err
	}
	courierSvc, err := courier.NewService(courier.NewRepository(conn), pointSvc, userRepo, gateway, dbClient, courierCodes, logg, time.Now)
	if err != nil {
		return nil, err
	}

	deliveryReconciler, err := payments.NewReconciler(deliverySvc.PaymentStore(), gateway, logg, cfg.Sweep.PaymentGraceWindow, time.Now)
	if err != nil {
		return nil, err
	}
	courierReconciler, err := payments.NewReconciler(courierSvc.PaymentStore(), gateway, logg, cfg.Sweep.PaymentGraceWindow, time.Now)
	if err != nil {
		return nil, err
	}

	noShowJob, err := cron.NewNoShowJob(cron.NoShowJobParams{
		Logger:       logg,
		Reservations: reservationSvc,
		Hour:         cfg.Sweep.NoShowHour,
	})
	if err != nil {
		return nil, err
	}
	autoCompleteJob, err := cron.NewDeliveryAutoCompleteJob(cron.DeliveryAutoCompleteJobParams{
		Logger:   logg,
		Delivery: deliverySvc,
		SLA:      cfg.Sweep.DeliverySLA,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger: logg,
		Reconcilers: cron.Reconcilers{
			"delivery": deliveryReconciler,
			"courier":  courierReconciler,
		},
	})
	if err != nil {
		return nil, err
	}
	warnResetJob, err := cron.NewWarnCountResetJob(cron.WarnCountResetJobParams{
		Logger: logg,
		Users:  userRepo,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(reconcileJob, autoCompleteJob, noShowJob, warnResetJob), nil
}
