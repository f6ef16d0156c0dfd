package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "oven_controller/docs"
	"oven_controller/internal/handlers"
	"oven_controller/internal/hardware"
	"oven_controller/internal/logger"
	"oven_controller/internal/metrics"
	"oven_controller/internal/repository"
	"oven_controller/internal/repository/db"
	"oven_controller/internal/server"
	"oven_controller/internal/service"
	"oven_controller/internal/telemetry"
	"oven_controller/internal/trend"

	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

// @title        Oven controller API
// @version      1.0
// @description  Setpoints, live state and history of a hobby electric oven.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := loadConfig(viper.New(), "configs", ".env")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}

	buf := trend.New(trend.DefaultCapacity)
	backend := openBackend(cfg, buf, log)
	pub := openPublisher(cfg, log)

	var (
		rec      metrics.Recorder = metrics.Nop{}
		metricsH http.Handler
	)
	if cfg.Metrics.Enabled {
		m := metrics.New()
		rec, metricsH = m, m.Handler()
	}

	// wire dependencies
	repos := repository.NewRepository(conn)
	services := service.NewService(service.Deps{
		Repos:     repos,
		Backend:   backend,
		Trend:     buf,
		Publisher: pub,
		Metrics:   rec,
		Log:       log,
		Control:   cfg.controlConfig(),
		Auth: service.AuthConfig{
			SigningKey: cfg.Auth.SigningKey,
			TokenTTL:   cfg.Auth.TokenTTL,
		},
	})
	apiHandler := handlers.NewHandler(services, log, handlers.Options{
		AuthEnabled: cfg.Auth.Enabled,
		Metrics:     metricsH,
	})

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		services.Controller.Run(ctx, cfg.Control.Tick)
	}()
	log.Infow("control_loop_started", "tick", cfg.Control.Tick, "backend", cfg.Hardware.Backend)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg, apiHandler, log)

	waitForSignal(log)
	shutdown(cancel, loopDone, srv, backend, pub, conn, log)
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg config, log *logger.Logger) (*sql.DB, error) {
	path := cfg.DB.Path
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "oven.db")
		path = "oven.db"
	}
	return db.InitDB(path)
}

// openBackend picks the actuator/sensor backend. In auto mode a GPIO setup
// failure falls back to the simulation.
func openBackend(cfg config, buf *trend.Buffer, log *logger.Logger) hardware.Backend {
	sim := func() hardware.Backend {
		return hardware.NewSimulatedBackend(buf, hardware.DefaultMockModel())
	}
	switch cfg.Hardware.Backend {
	case backendSimulated:
		log.Infow("hardware_backend", "backend", backendSimulated)
		return sim()
	case backendGPIO:
		b, err := hardware.NewGPIOBackend(cfg.gpioConfig())
		if err != nil {
			log.Fatalw("failed to open gpio backend", "err", err)
		}
		log.Infow("hardware_backend", "backend", backendGPIO, "chip", cfg.Hardware.Chip)
		return b
	default:
		b, err := hardware.NewGPIOBackend(cfg.gpioConfig())
		if err != nil {
			log.Warnw("gpio unavailable, using simulated oven", "err", err)
			return sim()
		}
		log.Infow("hardware_backend", "backend", backendGPIO, "chip", cfg.Hardware.Chip)
		return b
	}
}

// openPublisher connects to MQTT when a broker is configured. A broker that is
// down at startup is not fatal.
func openPublisher(cfg config, log *logger.Logger) telemetry.Publisher {
	if cfg.MQTT.Broker == "" {
		return telemetry.Nop{}
	}
	p, err := telemetry.NewMQTTPublisher(telemetry.MQTTConfig{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topic:    cfg.MQTT.Topic,
	})
	if err != nil {
		log.Warnw("mqtt unavailable, telemetry disabled", "broker", cfg.MQTT.Broker, "err", err)
		return telemetry.Nop{}
	}
	log.Infow("mqtt_connected", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	// the control loop never waits on the broker
	return telemetry.NewAsyncPublisher(p, cfg.MQTT.QueueSize, log)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, cfg config, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", cfg.Port)
		if err := srv.Run(cfg.Port, handler.InitRoutes(), cfg.HTTP); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

func waitForSignal(log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Infow("shutting down", "signal", sig.String())
}

// shutdown stops the HTTP server and the control loop, then releases the
// hardware (all outputs off), telemetry and the database.
func shutdown(cancel context.CancelFunc, loopDone <-chan struct{}, srv *server.Server,
	backend hardware.Backend, pub telemetry.Publisher, conn *sql.DB, log *logger.Logger) {
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	cancel()
	select {
	case <-loopDone:
	case <-ctx.Done():
		log.Warnw("control loop did not stop in time")
	}

	var errs []error
	if err := backend.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := pub.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		log.Errorw("shutdown cleanup failed", "err", err)
	}
	_ = log.Sync()
}
