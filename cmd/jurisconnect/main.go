package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nurpe/jurisconnect/internal/auth"
	"github.com/nurpe/jurisconnect/internal/config"
	"github.com/nurpe/jurisconnect/internal/db"
	"github.com/nurpe/jurisconnect/internal/excel"
	httphandler "github.com/nurpe/jurisconnect/internal/http"
	"github.com/nurpe/jurisconnect/internal/http/middleware"
	"github.com/nurpe/jurisconnect/internal/logger"
	"github.com/nurpe/jurisconnect/internal/notify"
	"github.com/nurpe/jurisconnect/internal/pdf"
	"github.com/nurpe/jurisconnect/internal/repository"
	"github.com/nurpe/jurisconnect/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	var store service.Store
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		store = repository.NewMemoryStore()
	default:
		database, err := db.New(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect database")
		}
		store = repository.NewPostgresStore(database)
	}

	var publisher notify.Publisher
	var kafkaPublisher *notify.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, log)
		publisher = kafkaPublisher
	} else {
		publisher = notify.NewLogPublisher(log)
	}
	dispatcher := notify.NewDispatcher(publisher, log)

	requestService := service.NewRequestService(store, cfg)
	reportService := service.NewReportService(store, excel.NewGenerator(), pdf.NewGenerator())

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(requestService, reportService, dispatcher, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, cfg.HTTP.CORSAllowedOrigins, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	server := &http.Server{Addr: addr, Handler: router}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store.Driver).Msg("starting jurisconnect service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("server stopped")
		exitCode = 1
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending notifications dropped")
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka publisher")
		}
	}
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
