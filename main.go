// main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema-reservation/cmd"
	"cinema-reservation/internal/data/repository"
	"cinema-reservation/internal/event"
	"cinema-reservation/internal/gateway"
	"cinema-reservation/internal/usecase"
	"cinema-reservation/internal/wire"
	"cinema-reservation/internal/worker"
	"cinema-reservation/pkg/database"
	"cinema-reservation/pkg/telemetry"
	"cinema-reservation/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(config.App)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, config.Telemetry)
	if err != nil {
		logger.Fatal("Failed to init tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	if config.Database.RunMigrations {
		if err := database.Migrate(config.Database, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	repos := repository.NewRepository(db, logger)

	gateways, err := initGateways(config)
	if err != nil {
		logger.Fatal("Failed to init payment gateways", zap.Error(err))
	}
	logger.Info("Payment gateways ready", zap.Strings("providers", gateways.Names()))

	publisher := initPublisher(config, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()

	service := usecase.NewService(usecase.Deps{
		Repo:      repos,
		Tx:        database.NewTransactor(db),
		Gateways:  gateways,
		Publisher: publisher,
		Policy:    config.Booking,
		Log:       logger,
	})

	var lease worker.Lease
	if config.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer client.Close()
		lease = worker.NewRedisLease(client, config.Redis.LeaseKey, uuid.NewString(), 2*config.Booking.SweepInterval)
	}

	sweeper := worker.NewExpirySweeper(service.Sweeper, lease, &worker.SweeperConfig{
		Interval: config.Booking.SweepInterval,
	}, logger)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("Failed to start expiry sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	app := wire.Wiring(service, sweeper, config, logger)

	if err := cmd.APIServer(ctx, app.Router, config.App.Port, config.App.ShutdownTimeout, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}

func initGateways(config *utils.Config) (*gateway.Registry, error) {
	var gateways []gateway.PaymentGateway

	if config.Sandbox.Enabled {
		gateways = append(gateways, gateway.NewSandboxGateway(config.Sandbox.WebhookSecret))
	}

	if config.Stripe.Enabled {
		stripeGateway, err := gateway.NewStripeGateway(gateway.StripeGatewayConfig{
			SecretKey:     config.Stripe.SecretKey,
			WebhookSecret: config.Stripe.WebhookSecret,
			Currency:      config.Booking.Currency,
		})
		if err != nil {
			return nil, err
		}
		gateways = append(gateways, stripeGateway)
	}

	return gateway.NewRegistry(gateways...), nil
}

func initPublisher(config *utils.Config, logger *zap.Logger) event.Publisher {
	if config.Kafka.Enabled && len(config.Kafka.Brokers) > 0 {
		logger.Info("Publishing booking events to Kafka",
			zap.Strings("brokers", config.Kafka.Brokers),
			zap.String("topic", config.Kafka.Topic),
		)
		return event.NewProducer(config.Kafka.Brokers, config.Kafka.Topic, logger)
	}
	return event.NewLogPublisher(logger)
}
