package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prietto/microservices-dapr/common/broker"
	"github.com/prietto/microservices-dapr/common/logger"
	"github.com/prietto/microservices-dapr/common/metrics"
	"github.com/prietto/microservices-dapr/discovery"
	"github.com/prietto/microservices-dapr/discovery/consul"
)

type App struct {
	registry      discovery.Registry
	registration  *discovery.Registration
	httpServer    *http.Server
	channel       *amqp.Channel
	closeRabbitMQ func() error
	store         InventoryStore
	cache         *ItemCache
	config        Config
	sagaMetrics   *metrics.SagaMetrics
	logger        *slog.Logger
}

type Config struct {
	ServiceName      string
	InstanceID       string
	HTTPAddr         string
	ConsulAddr       string
	AMQPUser         string
	AMQPPass         string
	AMQPHost         string
	AMQPPort         string
	DatabaseURL      string
	RedisAddr        string
	RedisTTL         time.Duration
	PublishAuthToken string
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

	pg, err := NewPostgresStore(config.DatabaseURL)
	if err != nil {
		ch.Close()
		return nil, err
	}

	var store InventoryStore = pg
	var cache *ItemCache
	if config.RedisAddr != "" {
		cache, err = NewItemCache(config.RedisAddr, config.RedisTTL)
		if err != nil {
			log.Warn("redis unavailable, running without cache-aside", slog.Any("error", err))
		} else {
			store = NewCachedStore(pg, cache, log)
		}
	}
	store = NewTelemetryMiddleware(store)

	return &App{
		registry:      registry,
		channel:       ch,
		closeRabbitMQ: closeFn,
		store:         store,
		cache:         cache,
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
	validator := NewDeletionValidator(publisher, a.logger)

	if err := RegisterConsumers(publisher, a.store, validator, a.sagaMetrics, a.logger); err != nil {
		return err
	}

	router := mux.NewRouter()
	registerRoutes(router, a.store, a.logger)
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
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("error closing redis", slog.Any("error", err))
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
