package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/logger"
	"github.com/prietto/microservices-dapr/common/metrics"
	"github.com/prietto/microservices-dapr/discovery"
	"github.com/prietto/microservices-dapr/discovery/consul"
	"github.com/prietto/microservices-dapr/payment/processor"
)

type App struct {
	registry      discovery.Registry
	registration  *discovery.Registration
	httpServer    *http.Server
	channel       *amqp.Channel
	closeRabbitMQ func() error
	store         PaymentStore
	config        Config
	sagaMetrics   *metrics.SagaMetrics
	logger        *slog.Logger
}

type Config struct {
	ServiceName          string
	InstanceID           string
	HTTPAddr             string
	ConsulAddr           string
	AMQPUser             string
	AMQPPass             string
	AMQPHost             string
	AMQPPort             string
	DatabaseURL          string
	StripeKey            string
	StripePaymentMethod  string
	StripeEndpointSecret string
	PublishAuthToken     string
}

func NewApp(config Config) (*App, error) {
	log := logger.NewLogger(config.ServiceName)

	registry, err := createRegistry(config.ConsulAddr, log)
	if err != nil {
		return nil, err
	}

	log.Info("connecting to rabbitmq", slog.String("host", config.AMQPHost))
	ch, closeFn, err := broker.Connect(config.AMQPUser, config.AMQPPass, config.AMQPHost, config.AMQPPort)
	if err != nil {
		return nil, err
	}

	store, err := NewPostgresStore(config.DatabaseURL)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return &App{
		registry:      registry,
		channel:       ch,
		closeRabbitMQ: closeFn,
		store:         store,
		config:        config,
		sagaMetrics:   metrics.NewSagaMetrics(config.ServiceName),
		logger:        log,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	registration, err := discovery.Register(ctx, a.registry, a.config.InstanceID, a.config.ServiceName, a.config.HTTPAddr)
	if err != nil {
		return err
	}
	a.registration = registration

	publisher := broker.NewAdapter(a.channel, a.config.PublishAuthToken, a.logger)
	charger := processor.NewStripeProcessor(a.config.StripeKey, a.config.StripePaymentMethod)
	validator := NewDeletionValidator(a.store, publisher, a.logger)

	if err := RegisterConsumers(publisher, a.store, charger, validator, a.sagaMetrics, a.logger); err != nil {
		return err
	}

	router := mux.NewRouter()
	registerRoutes(router, a.store, a.config.StripeEndpointSecret, a.logger)
	router.Handle("/metrics", promhttp.Handler())

	a.httpServer = &http.Server{Addr: a.config.HTTPAddr, Handler: router}

	a.logger.Info("starting http server", slog.String("addr", a.config.HTTPAddr))
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down gracefully")

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("error shutting down http server", slog.Any("error", err))
		}
	}
	if a.closeRabbitMQ != nil {
		if err := a.closeRabbitMQ(); err != nil {
			a.logger.Error("error closing rabbitmq", slog.Any("error", err))
		}
	}

	return a.registration.Deregister(ctx)
}

func createRegistry(addr string, log *slog.Logger) (discovery.Registry, error) {
	if addr == "" {
		log.Info("consul address not provided, service discovery disabled")
		return nil, nil
	}
	return consul.NewRegistry(addr)
}
