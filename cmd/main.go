package main

import (
	"context"
	"errors"
	logg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jaam8/surbate/internal/api"
	"github.com/jaam8/surbate/internal/auth"
	"github.com/jaam8/surbate/internal/config"
	"github.com/jaam8/surbate/internal/events"
	"github.com/jaam8/surbate/internal/notify"
	"github.com/jaam8/surbate/internal/repository"
	srv "github.com/jaam8/surbate/internal/service"
	"github.com/jaam8/surbate/pkg/logger"
	"github.com/jaam8/surbate/pkg/pseudonym"
	"github.com/jaam8/surbate/pkg/tarantool"
	"go.uber.org/zap"
)

type stores struct {
	polls   srv.PollRepository
	surveys srv.SurveyRepository
	close   func()
}

func openStores(cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		mem := repository.NewMemory(log)
		return &stores{polls: mem, surveys: mem, close: func() {}}, nil
	}
	conn, err := tarantool.New(cfg.Tarantool)
	if err != nil {
		return nil, err
	}
	if err = tarantool.Bootstrap(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &stores{
		polls:   repository.NewPollRepository(conn, log),
		surveys: repository.NewSurveyRepository(conn, log),
		close: func() {
			if err := conn.CloseGraceful(); err != nil {
				log.Warn("failed to close tarantool connection", zap.Error(err))
			}
		},
	}, nil
}

func openSessions(ctx context.Context, cfg *config.Config, log *zap.Logger) (auth.SessionStore, func(), error) {
	if cfg.SessionDriver == config.DriverMemory {
		return auth.NewMemorySessions(cfg.SessionTTL, nil), func() {}, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return auth.NewRedisSessions(client, cfg.SessionTTL, log), closer, nil
}

func main() {
	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	cfg, err := config.New()
	if err != nil {
		logg.Fatalf("failed to load config: %s", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		logg.Fatalf("failed to initalize logger: %s", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := openStores(cfg, log)
	if err != nil {
		logg.Fatalf("failed to open storage: %s", err)
	}
	defer st.close()

	sessions, closeSessions, err := openSessions(ctx, cfg, log)
	if err != nil {
		logg.Fatalf("failed to open session store: %s", err)
	}
	defer closeSessions()

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka, log)
		log.Info("publishing events to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close event publisher", zap.Error(err))
		}
	}()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Mattermost.Enabled() {
		notifier = notify.NewMattermost(cfg.Mattermost, cfg.BaseURL, log)
		log.Info("announcing polls in mattermost", zap.String("channel_id", cfg.Mattermost.ChannelID))
	}

	opts := srv.Options{
		Hasher:      pseudonym.New(cfg.IPHashSalt),
		Passwords:   auth.NewPasswords(cfg.BcryptCost),
		Sessions:    sessions,
		Events:      publisher,
		Notifier:    notifier,
		Quality:     cfg.Quality.Rules(),
		SaveRetries: cfg.SaveRetries,
	}
	polls := api.NewPollHandler(srv.NewPollService(st.polls, opts, log), log)
	surveys := api.NewSurveyHandler(srv.NewSurveyService(st.surveys, opts, log), log)
	router := api.NewRouter(polls, surveys, api.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
	}, log)

	server := &http.Server{
		Addr:    ":" + cfg.RestPort,
		Handler: router,
	}
	go func() {
		log.Info("server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", zap.Error(err))
	}
	log.Info("server graceful stopped")
}
